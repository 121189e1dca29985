package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"

	"consultation-relay/internal/booking"
	"consultation-relay/internal/config"
	"consultation-relay/internal/database"
	"consultation-relay/internal/language"
	"consultation-relay/internal/meeting"
	"consultation-relay/internal/storage"
	"consultation-relay/internal/translate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := database.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	translator, err := newTranslator(cfg, log)
	if err != nil {
		return err
	}
	defer translator.Close()

	archive, err := storage.NewMinio(ctx, storage.MinioConfig{
		Enabled:  cfg.MinioEnabled,
		Endpoint: cfg.MinioEndpoint,
		User:     cfg.MinioUser,
		Password: cfg.MinioPassword,
		Bucket:   cfg.MinioBucket,
		UseSSL:   cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}

	opts := meeting.Options{
		DefaultLanguage:  cfg.DefaultLanguage,
		TranslateTimeout: cfg.TranslationTimeout,
		TranscriptLimit:  cfg.TranscriptLimit,
	}
	if archive.Enabled() {
		opts.Archiver = archive
		log.Info("transcript archiving enabled", "bucket", archive.Bucket())
	}
	relay := meeting.NewServer(translator, opts, log)

	scheduler, closeLease, err := newScheduler(cfg, store, log)
	if err != nil {
		return err
	}
	defer closeLease()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		_ = scheduler.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", relay.WebSocketHandler(ctx, meeting.NewUpgrader(cfg.Origins(), log), cfg.SendBufferSize))
	mux.Handle("/api/bookings", booking.NewHandler(store, scheduler, log))
	mux.HandleFunc("/api/languages", handleLanguages(cfg.DefaultLanguage))
	mux.HandleFunc("/health", handleHealth(relay))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", server.Addr, "default_language", cfg.DefaultLanguage)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		stop()
		<-schedulerDone
		relay.Shutdown()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	<-schedulerDone
	// ctx is done, so every websocket handler is closing its socket.
	relay.Shutdown()
	log.Info("Server stopped cleanly")
	return nil
}

func newTranslator(cfg config.Config, log *slog.Logger) (*translate.Cached, error) {
	var base translate.Translator = translate.Stub{}
	if cfg.TranslationBaseURL != "" {
		base = translate.NewHTTPTranslator(cfg.TranslationBaseURL, cfg.TranslationTimeout)
		log.Info("translation service configured", "url", cfg.TranslationBaseURL)
	} else {
		log.Warn("TRANSLATION_BASE_URL not set - using stub translator")
	}
	return translate.NewCached(base, cfg.TranslationCacheTTL)
}

func newScheduler(cfg config.Config, store booking.Store, log *slog.Logger) (*booking.Scheduler, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	scheduler := booking.NewScheduler(store, booking.NewNotifier(cfg.NotifierURL, log), booking.SchedulerConfig{
		Interval:  cfg.ReminderInterval,
		Lead:      cfg.ReminderLead,
		Tolerance: cfg.ReminderTolerance,
		Location:  loc,
	}, log)

	if cfg.RedisAddr == "" {
		return scheduler, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	scheduler.WithLease(booking.NewRedisLease(client, booking.DefaultLeaseKey))
	log.Info("reminder sweep lease enabled", "redis", cfg.RedisAddr)
	return scheduler, func() { _ = client.Close() }, nil
}

type languagesResponse struct {
	Success   bool                `json:"success"`
	Languages []language.Language `json:"languages"`
	Default   string              `json:"default"`
}

func handleLanguages(defaultLanguage string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		writeJSON(w, languagesResponse{Success: true, Languages: language.All(), Default: defaultLanguage})
	}
}

func handleHealth(relay *meeting.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		registry := relay.Registry()
		writeJSON(w, map[string]any{
			"status":      "ok",
			"connections": registry.ConnectionCount(),
			"sessions":    registry.SessionCount(),
		})
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func sendJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
