package genai

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
)

// ssePrefix is the protocol marker the upstream prepends to each record when
// the response is delivered as server-sent events.
const ssePrefix = "data:"

// streamRecord mirrors the subset of a streamGenerateContent record we
// consume: the first candidate's content parts carrying text.
type streamRecord struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// StreamDecoder incrementally decodes a streamGenerateContent byte stream
// into accumulated text.
//
// Each fed chunk is split into lines; an optional "data:" prefix is stripped
// and every complete non-blank line is parsed as one JSON record. A line split
// across chunk boundaries is buffered until the remainder arrives. A complete
// line that still fails to parse is skipped and contributes nothing. Text
// fragments of the first candidate's content parts are appended in encounter
// order: output ordering is exactly chunks x lines x parts.
type StreamDecoder struct {
	pending []byte          // partial line carried over from the previous chunk
	out     strings.Builder // accumulated response text
	skipped int             // complete lines dropped because they failed to parse
}

// NewStreamDecoder creates an empty decoder.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Feed consumes the next raw chunk of the response stream.
func (d *StreamDecoder) Feed(chunk []byte) {
	data := append(d.pending, chunk...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		d.processLine(data[:idx])
		data = data[idx+1:]
	}
	d.pending = data
}

// Flush processes any buffered partial line. Call once after the last chunk.
func (d *StreamDecoder) Flush() {
	if len(d.pending) == 0 {
		return
	}
	d.processLine(d.pending)
	d.pending = nil
}

// Text returns the text accumulated so far.
func (d *StreamDecoder) Text() string {
	return d.out.String()
}

// Skipped returns the number of complete lines dropped as unparseable.
func (d *StreamDecoder) Skipped() int {
	return d.skipped
}

func (d *StreamDecoder) processLine(raw []byte) {
	line := strings.TrimSpace(string(raw))
	line = strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
	if line == "" || line == "[DONE]" {
		return
	}

	var rec streamRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		// Malformed records are dropped; the output may be silently
		// incomplete but the stream keeps going.
		d.skipped++
		slog.Debug("StreamDecoder skipping unparseable line", "error", err, "length", len(line))
		return
	}
	if len(rec.Candidates) == 0 {
		return
	}
	for _, part := range rec.Candidates[0].Content.Parts {
		if part.Text != "" {
			d.out.WriteString(part.Text)
		}
	}
}
