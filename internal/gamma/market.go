package gamma

import (
	"encoding/json"
	"strconv"
)

// FlexList is a field that arrives either as a JSON array or as a
// JSON-stringified array; Gamma uses both shapes interchangeably.
type FlexList []string

// UnmarshalJSON accepts ["a","b"] and "[\"a\",\"b\"]".
func (f *FlexList) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*f = direct
		return nil
	}
	var nested string
	if err := json.Unmarshal(data, &nested); err != nil {
		*f = nil
		return nil
	}
	var parsed []string
	if err := json.Unmarshal([]byte(nested), &parsed); err != nil {
		*f = nil
		return nil
	}
	*f = parsed
	return nil
}

// Market is the subset of the Gamma market document used here.
type Market struct {
	Slug             string      `json:"slug"`
	Question         string      `json:"question"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	ResolutionSource string      `json:"resolutionSource"`
	StartDate        string      `json:"startDate"`
	CreatedAt        string      `json:"createdAt"`
	EndDate          string      `json:"endDate"`
	ClosedTime       string      `json:"closedTime"`
	UMAEndDate       string      `json:"umaEndDate"`
	Active           bool        `json:"active"`
	Closed           bool        `json:"closed"`
	EventSlug        string      `json:"eventSlug"`
	GroupSlug        string      `json:"groupSlug"`
	Outcomes         FlexList    `json:"outcomes"`
	OutcomePrices    FlexList    `json:"outcomePrices"`
	LastTradePrice   *float64    `json:"lastTradePrice"`
	BestAsk          *float64    `json:"bestAsk"`
	Events           interface{} `json:"events"`
}

// Event is a group of related markets.
type Event struct {
	Slug             string   `json:"slug"`
	Title            string   `json:"title"`
	ResolutionSource string   `json:"resolutionSource"`
	Markets          []Market `json:"markets"`
}

// QuestionTitle picks the most descriptive title available.
func (m *Market) QuestionTitle() string {
	if m.Question != "" {
		return m.Question
	}
	if m.Title != "" {
		return m.Title
	}
	return m.Slug
}

// Open reports whether the market is accepting forecasts.
func (m *Market) Open() bool {
	return m.Active && !m.Closed
}

// EventSlugValue digs the event slug out of the several shapes Gamma uses.
func (m *Market) EventSlugValue() string {
	if m.EventSlug != "" {
		return m.EventSlug
	}
	switch events := m.Events.(type) {
	case map[string]interface{}:
		if s, ok := events["slug"].(string); ok {
			return s
		}
	case []interface{}:
		if len(events) > 0 {
			if obj, ok := events[0].(map[string]interface{}); ok {
				if s, ok := obj["slug"].(string); ok {
					return s
				}
			}
		}
	}
	return m.GroupSlug
}

// PriceInfo is a consensus estimate derived from market prices.
type PriceInfo struct {
	Center     float64 `json:"center"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// PriceInfo extracts the latest consensus estimate: outcome prices when a
// binary pair is present, otherwise last trade price or best ask.
func (m *Market) PriceInfo() *PriceInfo {
	if len(m.OutcomePrices) == 2 {
		no, errNo := strconv.ParseFloat(m.OutcomePrices[0], 64)
		yes, errYes := strconv.ParseFloat(m.OutcomePrices[1], 64)
		if errNo == nil && errYes == nil {
			lower, upper := yes, no
			if lower > upper {
				lower, upper = upper, lower
			}
			return &PriceInfo{Center: yes, LowerBound: lower, UpperBound: upper}
		}
	}
	if m.LastTradePrice != nil {
		p := *m.LastTradePrice
		return &PriceInfo{Center: p, LowerBound: p, UpperBound: p}
	}
	if m.BestAsk != nil {
		p := *m.BestAsk
		return &PriceInfo{Center: p, LowerBound: p, UpperBound: p}
	}
	return nil
}
