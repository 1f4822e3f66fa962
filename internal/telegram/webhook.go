package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"trimbot/internal/config"
)

const homepage = "trimbot is running. Message the bot on Telegram to shorten links.\n"

// Telegram caps update payloads well below this.
const maxUpdateBytes = 1 << 20

// WebhookPath is the path component of the configured webhook URL, or
// "/webhook" when the URL has none.
func WebhookPath(webhookURL string) (string, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", errors.Wrap(err, "parse webhook url")
	}
	if u.Path == "" || u.Path == "/" {
		return "/webhook", nil
	}
	return u.Path, nil
}

// RegisterWebhook points Telegram at the configured webhook URL.
func (b *Bot) RegisterWebhook() error {
	wh, err := tgbotapi.NewWebhook(b.cfg.WebhookURL)
	if err != nil {
		return errors.Wrap(err, "build webhook config")
	}
	if _, err := b.client.Request(wh); err != nil {
		return errors.Wrap(err, "set webhook")
	}
	b.log.Info().Str("url", b.cfg.WebhookURL).Msg("webhook registered")
	return nil
}

// WebhookHandler accepts Telegram update POSTs. Updates are acknowledged
// immediately and processed in the background; shutdown waits for them.
func (b *Bot) WebhookHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
			b.log.Warn().Err(err).Msg("decode webhook update")
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		b.dispatch(ctx, update)
		w.WriteHeader(http.StatusOK)
	})
}

// NewMux routes the homepage, the webhook path and, when metrics is non-nil,
// /metrics.
func (b *Bot) NewMux(ctx context.Context, webhookPath string, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, homepage)
	})
	mux.Handle("POST "+webhookPath, b.WebhookHandler(ctx))
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

// ServeWebhook registers the webhook and serves it until ctx is done.
func (b *Bot) ServeWebhook(ctx context.Context, metrics http.Handler) error {
	path, err := WebhookPath(b.cfg.WebhookURL)
	if err != nil {
		return err
	}
	if err := b.RegisterWebhook(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              b.cfg.ListenAddr,
		Handler:           b.NewMux(ctx, path, metrics),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		b.log.Info().Str("addr", srv.Addr).Str("path", path).Msg("serving webhook")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		b.log.Error().Err(err).Msg("server shutdown error")
		return errors.Wrap(err, "shutdown")
	}
	b.Wait()
	b.log.Info().Msg("webhook server stopped")
	return nil
}

// Run delivers updates in the configured mode until ctx is done.
func (b *Bot) Run(ctx context.Context, metrics http.Handler) error {
	if b.cfg.Mode == config.ModeWebhook {
		return b.ServeWebhook(ctx, metrics)
	}
	return b.Poll(ctx)
}
