package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/telegem/telegem/internal/genai"
	"github.com/telegem/telegem/internal/models"
	"github.com/telegem/telegem/internal/store"
)

// errTransient stands in for a connection-level failure in tests.
var errTransient = errors.New("connection reset")

// mockGenClient implements genai.ClientInterface for testing.
type mockGenClient struct {
	text        string
	err         error
	calls       int
	lastHistory []models.Turn
}

func (m *mockGenClient) StreamGenerate(ctx context.Context, history []models.Turn) (string, error) {
	m.calls++
	m.lastHistory = history
	return m.text, m.err
}

func TestRespond_SuccessAppendsUserAndModelTurns(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{text: "model reply"}
	r := NewResponder(st, client)

	out := r.Respond(context.Background(), "u", models.TextPart("question"))
	if out != "model reply" {
		t.Errorf("expected 'model reply', got %q", out)
	}

	history, _ := st.GetHistory("u")
	if len(history) != 2 {
		t.Fatalf("expected exactly 2 turns after success, got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleModel {
		t.Errorf("expected user then model, got %s then %s", history[0].Role, history[1].Role)
	}
	if history[1].Parts[0].Text != "model reply" {
		t.Errorf("model turn must carry the response, got %q", history[1].Parts[0].Text)
	}
}

func TestRespond_FailureAppendsUserTurnOnly(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{err: errors.New("connection reset")}
	r := NewResponder(st, client)

	out := r.Respond(context.Background(), "u", models.TextPart("question"))
	if !strings.Contains(out, "Could not reach") {
		t.Errorf("expected connectivity message, got %q", out)
	}

	history, _ := st.GetHistory("u")
	if len(history) != 1 {
		t.Fatalf("expected exactly 1 turn after failure, got %d", len(history))
	}
	if history[0].Role != models.RoleUser {
		t.Errorf("dangling turn must be the user's, got %s", history[0].Role)
	}
}

func TestRespond_FailureRollsBackWhenConfigured(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{err: errors.New("connection reset")}
	r := NewResponder(st, client, WithRollbackOnFailure())

	r.Respond(context.Background(), "u", models.TextPart("question"))

	history, _ := st.GetHistory("u")
	if len(history) != 0 {
		t.Errorf("expected empty history after rollback, got %d turns", len(history))
	}
}

func TestRespond_HTTPErrorSurfacesStatusAndBody(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{err: &genai.HTTPError{StatusCode: 429, Body: "quota exceeded"}}
	r := NewResponder(st, client)

	out := r.Respond(context.Background(), "u", models.TextPart("question"))
	if !strings.Contains(out, "429") || !strings.Contains(out, "quota exceeded") {
		t.Errorf("expected status and body in message, got %q", out)
	}
}

func TestRespond_HistorySentToClientIncludesNewUserTurn(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AppendTurn("u", models.UserTurn(models.TextPart("earlier")))
	st.AppendTurn("u", models.ModelTurn(models.TextPart("earlier reply")))
	client := &mockGenClient{text: "ok"}
	r := NewResponder(st, client)

	r.Respond(context.Background(), "u", models.TextPart("new question"))

	if len(client.lastHistory) != 3 {
		t.Fatalf("expected 3 turns sent to client, got %d", len(client.lastHistory))
	}
	last := client.lastHistory[2]
	if last.Role != models.RoleUser || last.Parts[0].Text != "new question" {
		t.Errorf("last history turn must be the new user turn, got %+v", last)
	}
}

func TestReset_ClearsSession(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{text: "ok"}
	r := NewResponder(st, client)

	r.Respond(context.Background(), "u", models.TextPart("question"))
	r.Reset("u")

	history, _ := st.GetHistory("u")
	if len(history) != 0 {
		t.Errorf("expected empty history after reset, got %d turns", len(history))
	}
}

func TestRespondStructured_PreambleListsSchemaFields(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{text: "{}"}
	r := NewResponder(st, client)

	r.RespondStructured(context.Background(), "u", "Summarize", map[string]any{"title": "x", "author": "y"})

	sent := client.lastHistory[0].Parts[0].Text
	if !strings.Contains(sent, "author, title") {
		t.Errorf("expected sorted field list in preamble, got %q", sent)
	}
	if !strings.Contains(sent, "Summarize") {
		t.Errorf("expected user prompt appended, got %q", sent)
	}
}

func TestRespondCode_WrapsPayload(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{text: "42"}
	r := NewResponder(st, client)

	r.RespondCode(context.Background(), "u", "print(6*7)")

	sent := client.lastHistory[0].Parts[0].Text
	if !strings.Contains(sent, "Code to execute:\nprint(6*7)") {
		t.Errorf("expected code wrapped with preamble, got %q", sent)
	}
}

func TestRespondURL_CarriesURLAndPrompt(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{text: "ok"}
	r := NewResponder(st, client)

	r.RespondURL(context.Background(), "u", "https://example.com", "Explain it")

	sent := client.lastHistory[0].Parts[0].Text
	if !strings.Contains(sent, "URL: https://example.com") || !strings.Contains(sent, "Explain it") {
		t.Errorf("expected URL and prompt in payload, got %q", sent)
	}
}

func TestRespondImage_AttachesInlineData(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &mockGenClient{text: "a cat"}
	r := NewResponder(st, client)

	r.RespondImage(context.Background(), "u", "what is this?", "image/jpeg", []byte{0xFF, 0xD8})

	parts := client.lastHistory[0].Parts
	if len(parts) != 2 {
		t.Fatalf("expected text part and data part, got %d parts", len(parts))
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "image/jpeg" {
		t.Errorf("expected inline image data, got %+v", parts[1])
	}
	if !strings.Contains(parts[0].Text, "what is this?") {
		t.Errorf("expected caption in prompt, got %q", parts[0].Text)
	}
}
