// Package bot wires a messaging transport, the menu state machine, and the
// conversation engine into a running service.
package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/telegem/telegem/internal/flow"
	"github.com/telegem/telegem/internal/messaging"
	"github.com/telegem/telegem/internal/models"
)

// Bot consumes transport events and dispatches them through the menu.
//
// Events are handled concurrently across users, but serialized per user:
// the transport makes no ordering guarantee, and session/state mutations for
// one user must not interleave.
type Bot struct {
	svc  messaging.Service
	menu *flow.Menu

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
	wg        sync.WaitGroup
}

// New creates a Bot over the given transport and menu.
func New(svc messaging.Service, menu *flow.Menu) *Bot {
	return &Bot{
		svc:       svc,
		menu:      menu,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Run starts the transport and processes events until the context is
// cancelled or the transport's event channel closes. In-flight handlers are
// drained before returning.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.svc.Start(ctx); err != nil {
		return err
	}
	slog.Info("Bot started")

	defer func() {
		if err := b.svc.Stop(); err != nil {
			slog.Error("Bot failed to stop messaging service", "error", err)
		}
		b.wg.Wait()
		slog.Info("Bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-b.svc.Events():
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleEvent(ctx, ev)
			}()
		}
	}
}

// handleEvent processes one event under the user's lock and sends the reply.
func (b *Bot) handleEvent(ctx context.Context, ev models.Event) {
	if ev.UserID == "" {
		slog.Warn("Bot dropping event without user ID", "kind", ev.Kind)
		return
	}
	lock := b.userLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	reply := b.menu.Handle(ctx, ev)
	if reply.Text == "" {
		return
	}
	if err := b.svc.SendReply(ctx, ev.UserID, reply); err != nil {
		slog.Error("Bot failed to send reply", "error", err, "userID", ev.UserID)
	}
}

// userLock returns the mutex serializing events for one user.
func (b *Bot) userLock(userID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		b.userLocks[userID] = lock
	}
	return lock
}
