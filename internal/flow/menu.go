package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/telegem/telegem/internal/models"
	"github.com/telegem/telegem/internal/store"
)

// User-facing menu copy.
const (
	msgGreeting = "👋 Hi! I relay your messages to Gemini. Pick an action from the menu, " +
		"then send the payload it asks for. Send /new any time to start a fresh conversation."
	msgHelp = "/start — show the menu\n/help — show this message\n/new — start a new conversation (reset context)\n\n" +
		"Pick an action from the menu, then send text, a photo, or a voice message as requested."
	msgNewChat       = "Started a new conversation. Previous context cleared."
	msgMainMenu      = "Choose an action:"
	msgPickFirst     = "Pick an action from the menu first."
	msgUnknownButton = "I don't recognize that action. Back to the main menu."
)

// instruction returned when a menu action is selected, keyed by button.
var actionInstructions = map[string]struct {
	state models.StateType
	text  string
}{
	models.ButtonTextGeneration:     {models.StateAwaitingText, "✍️ Send me the text prompt."},
	models.ButtonImageUnderstanding: {models.StateAwaitingImage, "🖼 Send me a photo, optionally with a caption."},
	models.ButtonVoiceProcessing:    {models.StateAwaitingVoice, "🎤 Send me a voice message, optionally with a caption."},
	models.ButtonStructuredOutput:   {models.StateAwaitingStructuredPrompt, "📋 Send two lines: your prompt, then a JSON object with the fields you want."},
	models.ButtonExecuteCode:        {models.StateAwaitingCode, "💻 Send me the code to execute."},
	models.ButtonAnalyzeURL:         {models.StateAwaitingURL, "🔗 Send a URL, optionally followed by a prompt on the next line."},
	models.ButtonWebSearch:          {models.StateAwaitingSearchQuery, "🔍 Send a search query, optionally followed by a prompt on the next line."},
}

// Menu is the per-user state machine routing inbound events to the Responder.
type Menu struct {
	store     store.Store
	responder *Responder
}

// NewMenu creates a Menu over the given store and responder.
func NewMenu(st store.Store, responder *Responder) *Menu {
	return &Menu{store: st, responder: responder}
}

// Handle maps one inbound event to exactly one reply, advancing the user's
// state as required. It never returns an empty reply: every event produces
// some text for the transport to deliver.
func (m *Menu) Handle(ctx context.Context, ev models.Event) models.Reply {
	slog.Debug("Menu handling event", "userID", ev.UserID, "kind", ev.Kind)
	switch ev.Kind {
	case models.EventCommand:
		return m.handleCommand(ev)
	case models.EventButton:
		return m.handleButton(ev)
	case models.EventText:
		return m.handleText(ctx, ev)
	case models.EventPhoto:
		return m.handlePhoto(ctx, ev)
	case models.EventVoice:
		return m.handleVoice(ctx, ev)
	default:
		slog.Warn("Menu received unknown event kind", "kind", ev.Kind, "userID", ev.UserID)
		return models.Reply{Text: msgMainMenu, Keyboard: models.KeyboardMainMenu}
	}
}

func (m *Menu) handleCommand(ev models.Event) models.Reply {
	switch ev.Text {
	case "start":
		m.setState(ev.UserID, models.StateMainMenu)
		return models.Reply{Text: msgGreeting, Keyboard: models.KeyboardMainMenu}
	case "new":
		m.responder.Reset(ev.UserID)
		m.setState(ev.UserID, models.StateMainMenu)
		return models.Reply{Text: msgNewChat, Keyboard: models.KeyboardMainMenu}
	case "help":
		return models.Reply{Text: msgHelp, Keyboard: models.KeyboardMainMenu}
	default:
		return models.Reply{Text: msgHelp, Keyboard: models.KeyboardMainMenu}
	}
}

func (m *Menu) handleButton(ev models.Event) models.Reply {
	if ev.Text == models.ButtonBack {
		// Back is unconditional and discards any partial input.
		m.setState(ev.UserID, models.StateMainMenu)
		return models.Reply{Text: msgMainMenu, Keyboard: models.KeyboardMainMenu}
	}
	action, ok := actionInstructions[ev.Text]
	if !ok {
		slog.Warn("Menu unknown button identifier", "button", ev.Text, "userID", ev.UserID)
		m.setState(ev.UserID, models.StateMainMenu)
		return models.Reply{Text: msgUnknownButton, Keyboard: models.KeyboardMainMenu}
	}
	m.setState(ev.UserID, action.state)
	return models.Reply{Text: action.text, Keyboard: models.KeyboardBack}
}

func (m *Menu) handleText(ctx context.Context, ev models.Event) models.Reply {
	state := m.currentState(ev.UserID)
	switch state {
	case models.StateMainMenu:
		// Bare text with no active selection is a no-op guidance prompt.
		return models.Reply{Text: msgPickFirst, Keyboard: models.KeyboardMainMenu}

	case models.StateAwaitingText:
		text := m.responder.RespondText(ctx, ev.UserID, ev.Text)
		return m.finish(ev.UserID, text)

	case models.StateAwaitingStructuredPrompt:
		prompt, schema, err := parseStructuredInput(ev.Text)
		if err != nil {
			// Recoverable by resubmission: state unchanged.
			return models.Reply{Text: formatGuidance(err), Keyboard: models.KeyboardBack}
		}
		text := m.responder.RespondStructured(ctx, ev.UserID, prompt, schema)
		return m.finish(ev.UserID, text)

	case models.StateAwaitingCode:
		text := m.responder.RespondCode(ctx, ev.UserID, ev.Text)
		return m.finish(ev.UserID, text)

	case models.StateAwaitingURL:
		url, prompt, err := parseURLInput(ev.Text)
		if err != nil {
			return models.Reply{Text: formatGuidance(err), Keyboard: models.KeyboardBack}
		}
		text := m.responder.RespondURL(ctx, ev.UserID, url, prompt)
		return m.finish(ev.UserID, text)

	case models.StateAwaitingSearchQuery:
		query, prompt := parseSearchInput(ev.Text)
		text := m.responder.RespondSearch(ctx, ev.UserID, query, prompt)
		return m.finish(ev.UserID, text)

	case models.StateAwaitingImage:
		return models.Reply{Text: "🖼 I'm waiting for a photo. Send one, or go back to the menu.", Keyboard: models.KeyboardBack}

	case models.StateAwaitingVoice:
		return models.Reply{Text: "🎤 I'm waiting for a voice message. Send one, or go back to the menu.", Keyboard: models.KeyboardBack}

	default:
		// Defensive: unreachable after currentState normalization.
		return models.Reply{Text: msgPickFirst, Keyboard: models.KeyboardMainMenu}
	}
}

func (m *Menu) handlePhoto(ctx context.Context, ev models.Event) models.Reply {
	state := m.currentState(ev.UserID)
	if state != models.StateAwaitingImage {
		return m.wrongModality(state, "a photo")
	}
	text := m.responder.RespondImage(ctx, ev.UserID, ev.Caption, ev.MIMEType, ev.Data)
	return m.finish(ev.UserID, text)
}

func (m *Menu) handleVoice(ctx context.Context, ev models.Event) models.Reply {
	state := m.currentState(ev.UserID)
	if state != models.StateAwaitingVoice {
		return m.wrongModality(state, "a voice message")
	}
	text := m.responder.RespondVoice(ctx, ev.UserID, ev.Caption)
	return m.finish(ev.UserID, text)
}

// wrongModality builds the guidance reply for an unexpected payload type.
// The state is left unchanged.
func (m *Menu) wrongModality(state models.StateType, got string) models.Reply {
	if state == models.StateMainMenu {
		return models.Reply{Text: msgPickFirst, Keyboard: models.KeyboardMainMenu}
	}
	return models.Reply{
		Text:     fmt.Sprintf("That action doesn't take %s. Send the payload it asked for, or go back to the menu.", got),
		Keyboard: models.KeyboardBack,
	}
}

// finish returns the user to the main menu after a completed action.
func (m *Menu) finish(userID, text string) models.Reply {
	m.setState(userID, models.StateMainMenu)
	return models.Reply{Text: text, Keyboard: models.KeyboardMainMenu}
}

// currentState resolves the user's state, defaulting to MainMenu on first
// reference and normalizing values outside the enumeration back to MainMenu.
func (m *Menu) currentState(userID string) models.StateType {
	state, err := m.store.GetState(userID)
	if err != nil {
		slog.Error("Menu failed to read state", "error", err, "userID", userID)
		return models.StateMainMenu
	}
	if state == "" {
		return models.StateMainMenu
	}
	if !models.IsValidState(state) {
		slog.Warn("Menu found state outside enumeration, treating as main menu", "state", state, "userID", userID)
		m.setState(userID, models.StateMainMenu)
		return models.StateMainMenu
	}
	return state
}

func (m *Menu) setState(userID string, state models.StateType) {
	if err := m.store.SetState(userID, state); err != nil {
		slog.Error("Menu failed to set state", "error", err, "userID", userID, "state", state)
	}
}

// formatGuidance converts a parsing error into the format-guidance message.
func formatGuidance(err error) string {
	return "⚠️ " + err.Error() + ". Please resend in the expected format."
}
