// Package messaging provides pluggable transports that deliver user events to
// the bot and carry replies back, with menu affordances rendered per transport.
package messaging

import (
	"context"
	"errors"

	"github.com/telegem/telegem/internal/models"
)

// DefaultChannelBufferSize is the buffer size for inbound event channels.
const DefaultChannelBufferSize = 64

// ErrServiceStopped is returned when an operation is attempted on a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// Service defines a pluggable message transport abstraction.
//
// Implementations deliver inbound user interactions on the Events channel and
// render replies (including the requested keyboard affordance) in whatever
// form the underlying channel supports.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Each transport implements its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendReply delivers a reply, rendering the keyboard affordance.
	SendReply(ctx context.Context, to string, reply models.Reply) error

	// Start begins background processing (e.g. long polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns the channel of inbound user events.
	Events() <-chan models.Event
}
