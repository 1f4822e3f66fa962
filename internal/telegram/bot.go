// Package telegram relays Telegram messages through the link rewriter and
// replies with the result.
package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"trimbot/internal/config"
	"trimbot/internal/logging"
)

const (
	greeting = "👋 Hello! I'm a URL Shortener Bot powered by Trimd. " +
		"Send me a link or forward a message, and I'll shorten the URLs for you!"
	noLinksReply = "I didn't find any new links to shorten in that message, or the API failed."
)

// BotClient is the subset of *tgbotapi.BotAPI the bot uses, so tests can
// inject a fake.
type BotClient interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Rewriter turns message text into its rewritten form and reports whether
// anything changed.
type Rewriter interface {
	Apply(ctx context.Context, text string) (string, bool)
}

// NewClient connects to the Bot API with the configured token and routes the
// library's own logging through log.
func NewClient(cfg config.TelegramConfig, log zerolog.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(logging.Printer{Log: log.With().Str("component", "tgbotapi").Logger()}); err != nil {
		return nil, errors.Wrap(err, "set telegram logger")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	api.Debug = cfg.Debug
	log.Info().Str("username", api.Self.UserName).Msg("authorized on telegram")
	return api, nil
}

type Bot struct {
	client BotClient
	rw     Rewriter
	cfg    config.TelegramConfig
	log    zerolog.Logger
	wg     sync.WaitGroup
}

func New(client BotClient, rw Rewriter, cfg config.TelegramConfig, log zerolog.Logger) *Bot {
	return &Bot{
		client: client,
		rw:     rw,
		cfg:    cfg,
		log:    log.With().Str("component", "telegram").Logger(),
	}
}

// Poll receives updates by long polling until ctx is done, then waits for
// in-flight updates to finish.
func (b *Bot) Poll(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.client.GetUpdatesChan(u)

	b.log.Info().Int("poll_timeout", b.cfg.PollTimeout).Msg("polling for updates")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			b.log.Info().Msg("polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				b.log.Info().Msg("updates channel closed")
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch handles each update on its own goroutine; updates share no state.
// Handlers outlive ctx so an accepted update is still answered during
// shutdown; the per-call shortener timeout bounds how long that takes.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.HandleUpdate(ctx, update)
	}()
}

// Wait blocks until every dispatched update has been handled.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	log := b.log.With().Int("update_id", update.UpdateID).Int64("chat_id", msg.Chat.ID).Logger()

	if msg.IsCommand() {
		if msg.Command() == "start" {
			b.send(log, tgbotapi.NewMessage(msg.Chat.ID, greeting))
		}
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	if _, err := b.client.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		log.Warn().Err(err).Msg("send typing action")
	}

	out, changed := b.rw.Apply(log.WithContext(ctx), text)
	reply := noLinksReply
	if changed {
		reply = out
	}

	m := tgbotapi.NewMessage(msg.Chat.ID, reply)
	m.ReplyToMessageID = msg.MessageID
	b.send(log, m)
}

func (b *Bot) send(log zerolog.Logger, c tgbotapi.Chattable) {
	if _, err := b.client.Send(c); err != nil {
		log.Error().Err(err).Msg("send reply")
	}
}
