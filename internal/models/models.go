// Package models defines the core data structures for TeleGem.
//
// It includes conversation turns and parts, transport events and replies,
// and the per-user menu states shared across modules.
package models

import "errors"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn authored by the user.
	RoleUser Role = "user"
	// RoleModel marks a turn produced by the generation service.
	RoleModel Role = "model"
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrInvalidRecipient = errors.New("recipient is not a valid chat identifier")
	ErrMissingAPIKey    = errors.New("generation API key not set")
	ErrEmptyHistory     = errors.New("history must contain at least one turn")
)

// InlineData is binary content tagged with a MIME type, carried inside a part.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Part is an atomic content unit within a turn: plain text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// TextPart builds a plain-text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// DataPart builds an inline binary part with the given MIME type.
func DataPart(mimeType string, data []byte) Part {
	return Part{InlineData: &InlineData{MIMEType: mimeType, Data: data}}
}

// Turn is one message exchange unit attributed to the user or the model.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// UserTurn builds a user-authored turn from the given parts.
func UserTurn(parts ...Part) Turn {
	return Turn{Role: RoleUser, Parts: parts}
}

// ModelTurn builds a model-authored turn from the given parts.
func ModelTurn(parts ...Part) Turn {
	return Turn{Role: RoleModel, Parts: parts}
}

// EventKind classifies an inbound transport event.
type EventKind string

const (
	// EventText is a plain text message.
	EventText EventKind = "text"
	// EventCommand is a slash command (start, help, new).
	EventCommand EventKind = "command"
	// EventButton is a menu button press carrying an opaque button identifier.
	EventButton EventKind = "button"
	// EventPhoto is an image attachment with an optional caption.
	EventPhoto EventKind = "photo"
	// EventVoice is a voice attachment with an optional caption.
	EventVoice EventKind = "voice"
)

// Event is one inbound user interaction delivered by a messaging transport.
type Event struct {
	UserID   string    `json:"user_id"`
	Kind     EventKind `json:"kind"`
	Text     string    `json:"text,omitempty"` // message text, command name, or button identifier
	Caption  string    `json:"caption,omitempty"`
	Data     []byte    `json:"data,omitempty"` // attachment bytes for photo/voice events
	MIMEType string    `json:"mime_type,omitempty"`
	Time     int64     `json:"time"`
}

// Keyboard selects the menu affordance attached to an outbound reply.
type Keyboard string

const (
	// KeyboardMainMenu attaches the main action menu.
	KeyboardMainMenu Keyboard = "main_menu"
	// KeyboardBack attaches a single back button.
	KeyboardBack Keyboard = "back"
	// KeyboardNone attaches no keyboard.
	KeyboardNone Keyboard = "none"
)

// Reply is the outbound response handed to the messaging transport.
type Reply struct {
	Text     string   `json:"text"`
	Keyboard Keyboard `json:"keyboard"`
}
