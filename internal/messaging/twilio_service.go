package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/telegem/telegem/internal/models"
)

// phoneNumberRegex matches everything that is not a digit, for canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// TwilioSender is the minimal Twilio operation used by the service, split out
// so tests can substitute a mock.
type TwilioSender interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioService implements Service over Twilio's WhatsApp messaging API.
//
// WhatsApp has no inline keyboards, so menus are rendered as numbered text
// and button presses arrive as the corresponding number (or "back"). Inbound
// messages are received via the Twilio webhook; the service is an
// http.Handler meant to be mounted at the webhook path.
type TwilioService struct {
	client     TwilioSender
	fromNumber string
	events     chan models.Event
	done       chan struct{}
	mu         sync.RWMutex
	stopped    bool
}

// NewTwilioService creates a TwilioService using the given account credentials
// and sender number (digits only, without the whatsapp: prefix).
func NewTwilioService(accountSID, authToken, fromNumber string) (*TwilioService, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("twilio credentials not set")
	}
	if fromNumber == "" {
		return nil, fmt.Errorf("twilio sender number not set")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return &TwilioService{
		client:     client.Api,
		fromNumber: fromNumber,
		events:     make(chan models.Event, DefaultChannelBufferSize),
		done:       make(chan struct{}),
	}, nil
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number by removing all non-numeric characters.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", models.ErrInvalidRecipient, recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q is too short", models.ErrInvalidRecipient, canonical)
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op: inbound messages arrive via the webhook handler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channel and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.events)
	}()
	return nil
}

// Events returns the inbound event channel.
func (s *TwilioService) Events() <-chan models.Event {
	return s.events
}

// SendReply sends the reply with the keyboard rendered as numbered text.
func (s *TwilioService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendReply validation error", "error", err, "to", to)
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonicalTo)
	params.SetFrom("whatsapp:+" + s.fromNumber)
	params.SetBody(renderTextReply(reply))
	if _, err := s.client.CreateMessage(params); err != nil {
		slog.Error("TwilioService failed to send message", "error", err, "to", canonicalTo)
		return fmt.Errorf("failed to send Twilio message: %w", err)
	}
	return nil
}

// ServeHTTP receives Twilio inbound-message webhooks and turns them into events.
func (s *TwilioService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	from, err := s.ValidateAndCanonicalizeRecipient(r.FormValue("From"))
	if err != nil {
		slog.Warn("TwilioService webhook with invalid sender", "error", err)
		http.Error(w, "invalid sender", http.StatusBadRequest)
		return
	}

	ev, ok := s.translateWebhook(from, r)
	if ok {
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
	// Twilio expects a TwiML document; an empty response suppresses any auto-reply.
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
}

// translateWebhook maps one webhook form post to an inbound event.
func (s *TwilioService) translateWebhook(from string, r *http.Request) (models.Event, bool) {
	now := time.Now().Unix()
	body := strings.TrimSpace(r.FormValue("Body"))

	if numMedia, _ := strconv.Atoi(r.FormValue("NumMedia")); numMedia > 0 {
		mediaURL := r.FormValue("MediaUrl0")
		contentType := r.FormValue("MediaContentType0")
		data, err := downloadMedia(mediaURL)
		if err != nil {
			slog.Error("TwilioService failed to download media", "error", err, "from", from)
			return models.Event{}, false
		}
		kind := models.EventPhoto
		if strings.HasPrefix(contentType, "audio/") {
			kind = models.EventVoice
		}
		return models.Event{UserID: from, Kind: kind, Caption: body, Data: data, MIMEType: contentType, Time: now}, true
	}

	if body == "" {
		return models.Event{}, false
	}
	kind, text := ParseInboundBody(body)
	return models.Event{UserID: from, Kind: kind, Text: text, Time: now}, true
}

// ParseInboundBody classifies a plain-text WhatsApp message. Menu selections
// arrive as the number rendered next to the option, "back"/"0" as the back
// button, and slash commands as commands; everything else is free text.
func ParseInboundBody(body string) (models.EventKind, string) {
	trimmed := strings.TrimSpace(body)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "0", "back":
		return models.EventButton, models.ButtonBack
	case "/start", "start":
		return models.EventCommand, "start"
	case "/help", "help":
		return models.EventCommand, "help"
	case "/new", "new":
		return models.EventCommand, "new"
	}

	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= len(models.MainMenuButtons) {
		return models.EventButton, models.MainMenuButtons[n-1]
	}
	return models.EventText, trimmed
}

// renderTextReply appends a numbered menu to the reply text for transports
// without native keyboards.
func renderTextReply(reply models.Reply) string {
	var b strings.Builder
	b.WriteString(reply.Text)
	switch reply.Keyboard {
	case models.KeyboardMainMenu:
		b.WriteString("\n")
		for i, button := range models.MainMenuButtons {
			fmt.Fprintf(&b, "\n%d. %s", i+1, models.ButtonLabels[button])
		}
	case models.KeyboardBack:
		b.WriteString("\n\nSend 0 to go back to the menu.")
	}
	return b.String()
}

// downloadMedia fetches attachment bytes from a Twilio media URL.
func downloadMedia(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("media URL is empty")
	}
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAttachmentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	return data, nil
}
