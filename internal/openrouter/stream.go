package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/meemoee/market-movers-hub-sub000/internal/sse"
)

// DeltaFunc receives each incremental content fragment as it arrives.
// Returning an error stops the stream.
type DeltaFunc func(delta string) error

// Stream sends a streaming chat completion and decodes the SSE response,
// invoking fn for every delta. It returns the concatenated text. Malformed
// frames are skipped; an error envelope frame aborts with that error.
// When ctx is canceled mid-stream the text accumulated so far is returned
// alongside the context error, so partial output stays usable.
func (c *Client) Stream(ctx context.Context, req *ChatRequest, fn DeltaFunc) (string, error) {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call openrouter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openrouter HTTP %d: %s", resp.StatusCode, string(payload))
	}

	var acc sse.Accumulator
	decoder := sse.NewDecoder(resp.Body)

	for {
		ev, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Honor cancellation but keep the partial text.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return acc.Text(), ctxErr
			}
			return acc.Text(), fmt.Errorf("stream read failed: %w", err)
		}

		var chunk StreamChunk
		if json.Unmarshal([]byte(ev.Data), &chunk) != nil {
			// Malformed frames are dropped mid-stream.
			continue
		}
		if chunk.Error != nil {
			return acc.Text(), chunk.Error
		}

		delta := chunk.Delta()
		if delta == "" {
			continue
		}
		acc.Write(delta)
		if fn != nil {
			if err := fn(delta); err != nil {
				return acc.Text(), err
			}
		}
	}

	return acc.Text(), nil
}
