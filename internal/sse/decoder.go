// Package sse decodes Server-Sent-Events streams and reassembles the
// incremental payloads carried on them. It is the single stream reader
// shared by the OpenRouter client and the HTTP streaming handlers.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// DoneSentinel is the literal data payload OpenAI-style streams send to
// mark the end of a completion stream.
const DoneSentinel = "[DONE]"

// Event is one decoded SSE frame. Type is empty for bare "data:" lines,
// which the protocol treats as "message".
type Event struct {
	Type string
	Data string
}

// Decoder incrementally splits a chunked byte stream into SSE frames.
// Frames are delimited by blank lines; fields are "event:", "data:" and
// ":" comments. Multiple data lines within a frame are joined with \n.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
}

// NewDecoder wraps r in an SSE frame decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Analysis deltas can carry long lines; 1 MiB per line is plenty.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next event in the stream. It returns io.EOF when the
// underlying stream ends or the [DONE] sentinel is seen; the sentinel is
// never surfaced as data. Empty frames (heartbeats, comments) are skipped.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return Event{}, io.EOF
	}

	var (
		eventType string
		dataLines []string
	)

	flush := func() (Event, bool) {
		if len(dataLines) == 0 {
			return Event{}, false
		}
		data := strings.Join(dataLines, "\n")
		if data == DoneSentinel {
			d.done = true
			return Event{}, false
		}
		return Event{Type: eventType, Data: data}, true
	}

	for d.scanner.Scan() {
		line := strings.TrimRight(d.scanner.Text(), "\r")

		if line == "" {
			// Frame boundary.
			if ev, ok := flush(); ok {
				return ev, nil
			}
			if d.done {
				return Event{}, io.EOF
			}
			eventType = ""
			dataLines = dataLines[:0]
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			eventType = value
		case "data":
			dataLines = append(dataLines, value)
		default:
			// id:, retry: and unknown fields are ignored.
		}
	}

	// Stream ended without a trailing blank line; flush what we have.
	if ev, ok := flush(); ok {
		d.done = true
		return ev, nil
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// splitField splits "field: value" per the SSE spec: the first colon ends
// the field name, a single leading space in the value is stripped.
func splitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}
