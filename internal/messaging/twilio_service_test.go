package messaging

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/telegem/telegem/internal/models"
)

// mockTwilioSender implements TwilioSender for testing.
type mockTwilioSender struct {
	sent []openapi.CreateMessageParams
}

func (m *mockTwilioSender) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	m.sent = append(m.sent, *params)
	return &openapi.ApiV2010Message{}, nil
}

func newTestTwilioService(sender *mockTwilioSender) *TwilioService {
	return &TwilioService{
		client:     sender,
		fromNumber: "14155551234",
		events:     make(chan models.Event, DefaultChannelBufferSize),
		done:       make(chan struct{}),
	}
}

func TestTwilioService_ValidateAndCanonicalizeRecipient(t *testing.T) {
	s := newTestTwilioService(&mockTwilioSender{})

	canonical, err := s.ValidateAndCanonicalizeRecipient("whatsapp:+1 (415) 555-9876")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if canonical != "14155559876" {
		t.Errorf("expected digits only, got %q", canonical)
	}

	if _, err := s.ValidateAndCanonicalizeRecipient(""); err == nil {
		t.Error("expected error for empty recipient")
	}
	if _, err := s.ValidateAndCanonicalizeRecipient("123"); err == nil {
		t.Error("expected error for too-short number")
	}
}

func TestParseInboundBody(t *testing.T) {
	cases := []struct {
		body     string
		wantKind models.EventKind
		wantText string
	}{
		{"1", models.EventButton, models.ButtonTextGeneration},
		{"7", models.EventButton, models.ButtonWebSearch},
		{"0", models.EventButton, models.ButtonBack},
		{"back", models.EventButton, models.ButtonBack},
		{"/start", models.EventCommand, "start"},
		{"new", models.EventCommand, "new"},
		{"8", models.EventText, "8"},
		{"hello there", models.EventText, "hello there"},
	}
	for _, c := range cases {
		kind, text := ParseInboundBody(c.body)
		if kind != c.wantKind || text != c.wantText {
			t.Errorf("ParseInboundBody(%q): expected (%s, %q), got (%s, %q)", c.body, c.wantKind, c.wantText, kind, text)
		}
	}
}

func TestRenderTextReply_MainMenuNumbered(t *testing.T) {
	out := renderTextReply(models.Reply{Text: "Choose:", Keyboard: models.KeyboardMainMenu})
	if !strings.Contains(out, "1. Text generation") {
		t.Errorf("expected numbered first option, got %q", out)
	}
	if !strings.Contains(out, "7. Web search") {
		t.Errorf("expected numbered last option, got %q", out)
	}
}

func TestRenderTextReply_BackHint(t *testing.T) {
	out := renderTextReply(models.Reply{Text: "Send the payload.", Keyboard: models.KeyboardBack})
	if !strings.Contains(out, "Send 0 to go back") {
		t.Errorf("expected back hint, got %q", out)
	}
}

func TestRenderTextReply_NoKeyboard(t *testing.T) {
	out := renderTextReply(models.Reply{Text: "plain", Keyboard: models.KeyboardNone})
	if out != "plain" {
		t.Errorf("expected unadorned text, got %q", out)
	}
}

func TestTwilioService_SendReplyFormatsAddresses(t *testing.T) {
	sender := &mockTwilioSender{}
	s := newTestTwilioService(sender)

	if err := s.SendReply(context.Background(), "14155559876", models.Reply{Text: "hi", Keyboard: models.KeyboardNone}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sent))
	}
	params := sender.sent[0]
	if params.To == nil || *params.To != "whatsapp:+14155559876" {
		t.Errorf("unexpected To: %v", params.To)
	}
	if params.From == nil || *params.From != "whatsapp:+14155551234" {
		t.Errorf("unexpected From: %v", params.From)
	}
}

func TestTwilioService_SendReplyAfterStop(t *testing.T) {
	s := newTestTwilioService(&mockTwilioSender{})
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := s.SendReply(context.Background(), "14155559876", models.Reply{Text: "hi"}); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestTwilioService_WebhookTextBecomesEvent(t *testing.T) {
	s := newTestTwilioService(&mockTwilioSender{})

	form := url.Values{}
	form.Set("From", "whatsapp:+14155559876")
	form.Set("Body", "hello bot")
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	select {
	case ev := <-s.events:
		if ev.UserID != "14155559876" || ev.Kind != models.EventText || ev.Text != "hello bot" {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected an event on the channel")
	}
}

func TestTwilioService_WebhookRejectsInvalidSender(t *testing.T) {
	s := newTestTwilioService(&mockTwilioSender{})

	form := url.Values{}
	form.Set("From", "")
	form.Set("Body", "hello")
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Errorf("expected 400 for invalid sender, got %d", rec.Code)
	}
}
