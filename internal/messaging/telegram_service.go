package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/telegem/telegem/internal/models"
)

// Telegram transport configuration constants
const (
	// DefaultPollTimeout is the long-polling timeout in seconds.
	DefaultPollTimeout = 30
	// MaxAttachmentBytes caps downloaded attachment sizes.
	MaxAttachmentBytes = 20 << 20
)

// TelegramService implements Service using the Telegram Bot API with long polling.
type TelegramService struct {
	bot     *tgbotapi.BotAPI
	events  chan models.Event
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewTelegramService creates a TelegramService for the given bot token.
func NewTelegramService(token string) (*TelegramService, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot client: %w", err)
	}
	slog.Info("TelegramService authorized", "username", bot.Self.UserName)
	return &TelegramService{
		bot:    bot,
		events: make(chan models.Event, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}, nil
}

// ValidateAndCanonicalizeRecipient requires a numeric Telegram chat identifier.
func (s *TelegramService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	id, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidRecipient, recipient)
	}
	return strconv.FormatInt(id, 10), nil
}

// Start begins long polling for updates and translating them into events.
func (s *TelegramService) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = DefaultPollTimeout
	updates := s.bot.GetUpdatesChan(u)
	go s.consumeUpdates(updates)
	slog.Debug("TelegramService long polling started")
	return nil
}

// Stop stops polling and closes the event channel.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	s.bot.StopReceivingUpdates()

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.events)
	}()
	return nil
}

// Events returns the inbound event channel.
func (s *TelegramService) Events() <-chan models.Event {
	return s.events
}

// SendReply sends the reply text with the requested keyboard rendered as an
// inline keyboard.
func (s *TelegramService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TelegramService SendReply validation error", "error", err, "to", to)
		return err
	}
	chatID, _ := strconv.ParseInt(canonicalTo, 10, 64)

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	switch reply.Keyboard {
	case models.KeyboardMainMenu:
		msg.ReplyMarkup = mainMenuKeyboard()
	case models.KeyboardBack:
		msg.ReplyMarkup = backKeyboard()
	}
	if _, err := s.bot.Send(msg); err != nil {
		slog.Error("TelegramService failed to send message", "error", err, "to", canonicalTo)
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}
	return nil
}

// consumeUpdates translates Telegram updates into transport events until stopped.
func (s *TelegramService) consumeUpdates(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		select {
		case <-s.done:
			return
		default:
		}

		ev, ok := s.translateUpdate(update)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// translateUpdate maps one Telegram update to an inbound event.
func (s *TelegramService) translateUpdate(update tgbotapi.Update) (models.Event, bool) {
	if update.CallbackQuery != nil {
		cq := update.CallbackQuery
		// Acknowledge so the client stops showing a spinner.
		if _, err := s.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			slog.Warn("TelegramService failed to answer callback query", "error", err)
		}
		if cq.Message == nil {
			return models.Event{}, false
		}
		return models.Event{
			UserID: strconv.FormatInt(cq.Message.Chat.ID, 10),
			Kind:   models.EventButton,
			Text:   cq.Data,
			Time:   time.Now().Unix(),
		}, true
	}

	msg := update.Message
	if msg == nil {
		return models.Event{}, false
	}
	userID := strconv.FormatInt(msg.Chat.ID, 10)

	switch {
	case msg.IsCommand():
		return models.Event{UserID: userID, Kind: models.EventCommand, Text: msg.Command(), Time: int64(msg.Date)}, true

	case len(msg.Photo) > 0:
		// Telegram provides multiple sizes; take the largest.
		photo := msg.Photo[len(msg.Photo)-1]
		data, err := s.downloadFile(photo.FileID)
		if err != nil {
			slog.Error("TelegramService failed to download photo", "error", err, "userID", userID)
			return models.Event{}, false
		}
		return models.Event{
			UserID:   userID,
			Kind:     models.EventPhoto,
			Caption:  msg.Caption,
			Data:     data,
			MIMEType: "image/jpeg",
			Time:     int64(msg.Date),
		}, true

	case msg.Voice != nil:
		data, err := s.downloadFile(msg.Voice.FileID)
		if err != nil {
			slog.Error("TelegramService failed to download voice", "error", err, "userID", userID)
			return models.Event{}, false
		}
		mimeType := msg.Voice.MimeType
		if mimeType == "" {
			mimeType = "audio/ogg"
		}
		return models.Event{
			UserID:   userID,
			Kind:     models.EventVoice,
			Caption:  msg.Caption,
			Data:     data,
			MIMEType: mimeType,
			Time:     int64(msg.Date),
		}, true

	case msg.Text != "":
		return models.Event{UserID: userID, Kind: models.EventText, Text: msg.Text, Time: int64(msg.Date)}, true

	default:
		return models.Event{}, false
	}
}

// downloadFile fetches attachment bytes through the Bot API file endpoint.
func (s *TelegramService) downloadFile(fileID string) ([]byte, error) {
	url, err := s.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file URL: %w", err)
	}
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAttachmentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return data, nil
}

// mainMenuKeyboard builds the inline keyboard for the main action menu.
func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(models.MainMenuButtons))
	for _, button := range models.MainMenuButtons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(models.ButtonLabels[button], button),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// backKeyboard builds the single back-button keyboard.
func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(models.ButtonLabels[models.ButtonBack], models.ButtonBack),
		),
	)
}
