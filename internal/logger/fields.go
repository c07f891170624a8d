package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the research job ID
	FieldJobID = "job_id"

	// FieldMarketID is the prediction-market identifier or slug
	FieldMarketID = "market_id"

	// FieldIteration is the research iteration number within a job
	FieldIteration = "iteration"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldModel is the LLM model identifier used for a call
	FieldModel = "model"
)

// Metric fields attached at the log-entry level for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
