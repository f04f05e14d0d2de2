package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/telegem/telegem/internal/bot"
	"github.com/telegem/telegem/internal/flow"
	"github.com/telegem/telegem/internal/genai"
	"github.com/telegem/telegem/internal/messaging"
	"github.com/telegem/telegem/internal/store"
	"github.com/telegem/telegem/internal/util"
)

// Default configuration constants
const (
	// DefaultTransport is the messaging transport used unless overridden.
	DefaultTransport = "telegram"
	// DefaultWebhookAddr is the listen address for the Twilio webhook server.
	DefaultWebhookAddr = ":8080"
)

// Config holds environment configuration
type Config struct {
	TelegramToken     string
	GeminiKey         string
	GeminiModel       string
	DatabaseDSN       string
	Transport         string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	WebhookAddr       string
	MaxHistoryTurns   int
	RollbackOnFailure bool
	Debug             bool
}

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	transport := flag.String("transport", config.Transport, "messaging transport: telegram or twilio")
	dsn := flag.String("db-dsn", config.DatabaseDSN, "database DSN for persistent session storage (empty: in-memory)")
	model := flag.String("model", config.GeminiModel, "generation model name")
	geminiKey := flag.String("gemini-key", config.GeminiKey, "Gemini API key")
	webhookAddr := flag.String("webhook-addr", config.WebhookAddr, "listen address for the Twilio webhook server")
	flag.Parse()

	st, err := buildStore(*dsn, config.MaxHistoryTurns)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	genaiOpts := []genai.Option{genai.WithAPIKey(*geminiKey)}
	if *model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*model))
	}
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Error("Failed to initialize generation client", "error", err)
		os.Exit(1)
	}

	var responderOpts []flow.ResponderOption
	if config.RollbackOnFailure {
		responderOpts = append(responderOpts, flow.WithRollbackOnFailure())
	}
	responder := flow.NewResponder(st, client, responderOpts...)
	menu := flow.NewMenu(st, responder)

	svc, err := buildTransport(*transport, *webhookAddr, config)
	if err != nil {
		slog.Error("Failed to initialize messaging transport", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping TeleGem", "transport", *transport, "model", *model, "dsn_set", *dsn != "")
	if err := bot.New(svc, menu).Run(ctx); err != nil {
		slog.Error("TeleGem failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TeleGem exited successfully")
}

// initializeLogger sets up structured logging.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		GeminiKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       os.Getenv("GEMINI_MODEL"),
		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		Transport:         os.Getenv("TELEGEM_TRANSPORT"),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		WebhookAddr:       os.Getenv("TWILIO_WEBHOOK_ADDR"),
		MaxHistoryTurns:   util.ParseIntEnv("TELEGEM_MAX_HISTORY_TURNS", store.DefaultMaxHistoryTurns),
		RollbackOnFailure: util.ParseBoolEnv("TELEGEM_ROLLBACK_ON_FAILURE", false),
		Debug:             util.ParseBoolEnv("TELEGEM_DEBUG", false),
	}
	if config.Transport == "" {
		config.Transport = DefaultTransport
	}
	if config.WebhookAddr == "" {
		config.WebhookAddr = DefaultWebhookAddr
	}
	return config
}

// buildStore selects a store backend from the DSN.
func buildStore(dsn string, maxTurns int) (store.Store, error) {
	opts := []store.Option{store.WithDSN(dsn), store.WithMaxHistoryTurns(maxTurns)}
	switch store.DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("Using PostgreSQL session store")
		return store.NewPostgresStore(opts...)
	case "sqlite":
		slog.Debug("Using SQLite session store", "path", dsn)
		return store.NewSQLiteStore(opts...)
	default:
		slog.Debug("Using in-memory session store")
		return store.NewInMemoryStore(opts...), nil
	}
}

// buildTransport constructs the configured messaging service. For the Twilio
// transport, the inbound webhook server is started here.
func buildTransport(transport, webhookAddr string, config Config) (messaging.Service, error) {
	switch transport {
	case "twilio":
		svc, err := messaging.NewTwilioService(config.TwilioAccountSID, config.TwilioAuthToken, config.TwilioFromNumber)
		if err != nil {
			return nil, err
		}
		go func() {
			slog.Info("Twilio webhook server listening", "addr", webhookAddr)
			if err := http.ListenAndServe(webhookAddr, svc); err != nil {
				slog.Error("Twilio webhook server failed", "error", err)
			}
		}()
		return svc, nil
	default:
		return messaging.NewTelegramService(config.TelegramToken)
	}
}
