// Package flow implements the conversation engine and the menu state machine.
//
// The Responder owns the session lifecycle around a generation call: it
// appends the user turn, drives the streaming client with the full history,
// and appends the model turn only when generation succeeded. The Menu maps
// inbound events to Responder invocations based on the user's awaiting-state.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/telegem/telegem/internal/genai"
	"github.com/telegem/telegem/internal/models"
	"github.com/telegem/telegem/internal/store"
)

// User-facing messages for generation failures. All pipeline errors are
// converted to plain reply text here; nothing propagates to the transport.
const (
	msgUnreachable = "⚠️ Could not reach the generation service. Please check your connectivity and try again."
	msgStoreError  = "⚠️ Something went wrong while handling your conversation. Please try again."
)

// Responder orchestrates the session store and the streaming client.
type Responder struct {
	store             store.Store
	client            genai.ClientInterface
	rollbackOnFailure bool
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithRollbackOnFailure removes the user turn from history when generation
// fails, instead of leaving it dangling for the next call to resend.
func WithRollbackOnFailure() ResponderOption {
	return func(r *Responder) {
		r.rollbackOnFailure = true
	}
}

// NewResponder creates a Responder over the given store and client.
func NewResponder(st store.Store, client genai.ClientInterface, opts ...ResponderOption) *Responder {
	r := &Responder{store: st, client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond appends the parts as a user turn, streams a response for the full
// history, and appends the model turn on success. The returned string is
// always suitable to send to the user: on failure it is an error message and
// no model turn is appended.
func (r *Responder) Respond(ctx context.Context, userID string, parts ...models.Part) string {
	if err := r.store.AppendTurn(userID, models.UserTurn(parts...)); err != nil {
		slog.Error("Responder failed to append user turn", "error", err, "userID", userID)
		return msgStoreError
	}

	history, err := r.store.GetHistory(userID)
	if err != nil {
		slog.Error("Responder failed to load history", "error", err, "userID", userID)
		return msgStoreError
	}

	text, err := r.client.StreamGenerate(ctx, history)
	if err != nil {
		if r.rollbackOnFailure {
			if rbErr := r.store.RemoveLastTurn(userID); rbErr != nil {
				slog.Error("Responder failed to roll back user turn", "error", rbErr, "userID", userID)
			}
		}
		return errorReply(err)
	}

	if err := r.store.AppendTurn(userID, models.ModelTurn(models.TextPart(text))); err != nil {
		slog.Error("Responder failed to append model turn", "error", err, "userID", userID)
	}
	return text
}

// Reset clears the user's session.
func (r *Responder) Reset(userID string) {
	if err := r.store.ResetSession(userID); err != nil {
		slog.Error("Responder failed to reset session", "error", err, "userID", userID)
	}
}

// RespondText forwards free text verbatim.
func (r *Responder) RespondText(ctx context.Context, userID, text string) string {
	return r.Respond(ctx, userID, models.TextPart(text))
}

// RespondImage sends the image bytes inline together with the caption.
func (r *Responder) RespondImage(ctx context.Context, userID, caption, mimeType string, data []byte) string {
	prompt := imagePreamble
	if caption != "" {
		prompt += "\n\n" + caption
	}
	return r.Respond(ctx, userID, models.TextPart(prompt), models.DataPart(mimeType, data))
}

// RespondVoice forwards the caption of a voice message through the voice
// preamble. The audio bytes are not transcribed.
func (r *Responder) RespondVoice(ctx context.Context, userID, caption string) string {
	return r.Respond(ctx, userID, models.TextPart(voicePreamble+"\n\n"+caption))
}

// RespondStructured asks for a JSON object limited to the schema's fields.
func (r *Responder) RespondStructured(ctx context.Context, userID, prompt string, schema map[string]any) string {
	fields := make([]string, 0, len(schema))
	for field := range schema {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	preamble := fmt.Sprintf(structuredPreamble, strings.Join(fields, ", "))
	return r.Respond(ctx, userID, models.TextPart(preamble+"\n\n"+prompt))
}

// RespondCode wraps the payload with the code-execution preamble.
func (r *Responder) RespondCode(ctx context.Context, userID, code string) string {
	return r.Respond(ctx, userID, models.TextPart(codePreamble+"\n\nCode to execute:\n"+code))
}

// RespondURL wraps the URL and prompt with the URL-analysis preamble.
func (r *Responder) RespondURL(ctx context.Context, userID, url, prompt string) string {
	return r.Respond(ctx, userID, models.TextPart(urlPreamble+"\n\n"+prompt+"\n\nURL: "+url))
}

// RespondSearch wraps the query and prompt with the search preamble.
func (r *Responder) RespondSearch(ctx context.Context, userID, query, prompt string) string {
	return r.Respond(ctx, userID, models.TextPart(searchPreamble+"\n\n"+prompt+"\n\nSearch query: "+query))
}

// errorReply converts a generation error into the user-facing message.
func errorReply(err error) string {
	var httpErr *genai.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("⚠️ The generation service returned an error (HTTP %d): %s", httpErr.StatusCode, httpErr.Body)
	}
	return msgUnreachable
}
