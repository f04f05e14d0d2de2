package genai

import "testing"

func TestStreamDecoder_AccumulatesAcrossChunks(t *testing.T) {
	d := NewStreamDecoder()
	d.Feed([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hi\"}]}}]}\n"))
	d.Feed([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" there\"}]}}]}\n"))
	d.Flush()

	if got := d.Text(); got != "Hi there" {
		t.Errorf("expected 'Hi there', got %q", got)
	}
}

func TestStreamDecoder_BareJSONLines(t *testing.T) {
	// The upstream is observed both with and without the SSE prefix.
	d := NewStreamDecoder()
	d.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"plain"}]}}]}` + "\n"))
	d.Flush()

	if got := d.Text(); got != "plain" {
		t.Errorf("expected 'plain', got %q", got)
	}
}

func TestStreamDecoder_SkipsInvalidLine(t *testing.T) {
	d := NewStreamDecoder()
	d.Feed([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"before\"}]}}]}\n"))
	d.Feed([]byte("this is not json\n"))
	d.Feed([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" after\"}]}}]}\n"))
	d.Flush()

	if got := d.Text(); got != "before after" {
		t.Errorf("invalid line must not contribute, expected 'before after', got %q", got)
	}
	if d.Skipped() != 1 {
		t.Errorf("expected 1 skipped line, got %d", d.Skipped())
	}
}

func TestStreamDecoder_BuffersRecordSplitAcrossChunks(t *testing.T) {
	d := NewStreamDecoder()
	d.Feed([]byte("data: {\"candidates\":[{\"content\":{\"par"))
	d.Feed([]byte("ts\":[{\"text\":\"joined\"}]}}]}\n"))
	d.Flush()

	if got := d.Text(); got != "joined" {
		t.Errorf("record split across chunks must be buffered, expected 'joined', got %q", got)
	}
	if d.Skipped() != 0 {
		t.Errorf("expected no skipped lines, got %d", d.Skipped())
	}
}

func TestStreamDecoder_FlushProcessesTrailingLine(t *testing.T) {
	// Final record without a trailing newline.
	d := NewStreamDecoder()
	d.Feed([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"tail"}]}}]}`))
	d.Flush()

	if got := d.Text(); got != "tail" {
		t.Errorf("expected 'tail' after flush, got %q", got)
	}
}

func TestStreamDecoder_MultiplePartsInOrder(t *testing.T) {
	d := NewStreamDecoder()
	d.Feed([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"a"},{"text":"b"},{"text":"c"}]}}]}` + "\n"))
	d.Flush()

	if got := d.Text(); got != "abc" {
		t.Errorf("parts must be appended in encounter order, expected 'abc', got %q", got)
	}
}

func TestStreamDecoder_IgnoresBlankAndDoneLines(t *testing.T) {
	d := NewStreamDecoder()
	d.Feed([]byte("\n\r\n"))
	d.Feed([]byte("data: [DONE]\n"))
	d.Feed([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n"))
	d.Flush()

	if got := d.Text(); got != "ok" {
		t.Errorf("expected 'ok', got %q", got)
	}
	if d.Skipped() != 0 {
		t.Errorf("blank and [DONE] lines must not count as skipped, got %d", d.Skipped())
	}
}

func TestStreamDecoder_OnlyFirstCandidateUsed(t *testing.T) {
	d := NewStreamDecoder()
	d.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"first"}]}},{"content":{"parts":[{"text":"second"}]}}]}` + "\n"))
	d.Flush()

	if got := d.Text(); got != "first" {
		t.Errorf("only the first candidate's parts are scanned, expected 'first', got %q", got)
	}
}

func TestStreamDecoder_RecordWithoutTextContributesNothing(t *testing.T) {
	d := NewStreamDecoder()
	d.Feed([]byte(`{"candidates":[{"content":{"parts":[{}]}}]}` + "\n"))
	d.Flush()

	if got := d.Text(); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}
