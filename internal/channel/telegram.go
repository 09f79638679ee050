// Package channel implements the Telegram delivery channel. A chat binds to
// a subscriber identity through /login; after that, plain messages from the
// chat enter the shared message feed and replies flow back through Notify.
package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"billgate/internal/billing"
	"billgate/internal/database"
)

const (
	welcomeText = "👋 Welcome to the billing assistant.\n" +
		"Login first with /login <phone number>, then just ask:\n" +
		"\"Check my bill\", \"Show my detailed bills\" or \"Pay 50 for October\"."
	loginUsageText  = "Usage: /login <phone number>"
	notBoundText    = "Please login first with /login <phone number>."
	loginFailedText = "❌ Login failed. Check the phone number and try again."
)

// Telegram is the Telegram-side channel adapter. Chat-to-identity bindings
// live in memory and reset on restart.
type Telegram struct {
	bot    *tgbot.Bot
	store  database.Store
	tokens *billing.TokenCache
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[int64]string
}

// NewTelegram creates the Telegram channel and registers its handlers.
func NewTelegram(token string, store database.Store, tokens *billing.TokenCache, log *slog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	t := &Telegram{
		store:    store,
		tokens:   tokens,
		log:      log.With("component", "telegram_channel"),
		sessions: make(map[int64]string),
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(t.handleText))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "start", tgbot.MatchTypeCommandStartOnly, t.handleStart)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "login", tgbot.MatchTypeCommandStartOnly, t.handleLogin)
	t.bot = b

	return t, nil
}

// Start polls Telegram for updates until the context is cancelled.
func (t *Telegram) Start(ctx context.Context) {
	t.log.Info("Starting Telegram listener")
	t.bot.Start(ctx)
	t.log.Info("Telegram listener stopped")
}

// Notify delivers an agent reply back to the chat recorded on the message.
func (t *Telegram) Notify(ctx context.Context, msg *database.Message) {
	chatID, err := strconv.ParseInt(msg.ChatRef, 10, 64)
	if err != nil {
		t.log.ErrorContext(ctx, "Reply carries an invalid chat reference", "chat_ref", msg.ChatRef, "error", err)
		return
	}
	t.send(ctx, chatID, msg.Body)
}

func (t *Telegram) handleStart(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	t.send(ctx, update.Message.Chat.ID, welcomeText)
}

// handleLogin binds the chat to the given phone number after verifying it
// against the billing backend. A rebind replaces the previous identity.
func (t *Telegram) handleLogin(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) != 2 {
		t.send(ctx, chatID, loginUsageText)
		return
	}
	phone := parts[1]

	if _, err := t.tokens.Get(ctx, phone); err != nil {
		t.log.WarnContext(ctx, "Telegram login failed", "chat_id", chatID, "error", err)
		t.send(ctx, chatID, loginFailedText)
		return
	}

	t.mu.Lock()
	t.sessions[chatID] = phone
	t.mu.Unlock()

	t.log.InfoContext(ctx, "Chat bound to identity", "chat_id", chatID, "identity", phone)
	t.send(ctx, chatID, fmt.Sprintf("✅ Logged in as %s. Ask away.", phone))
}

// handleText feeds a bound chat's message into the store. The reply comes
// back asynchronously through Notify once the processor picks it up.
func (t *Telegram) handleText(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	chatID := update.Message.Chat.ID

	t.mu.RLock()
	identity, bound := t.sessions[chatID]
	t.mu.RUnlock()
	if !bound {
		t.send(ctx, chatID, notBoundText)
		return
	}

	msg := &database.Message{
		Identity: identity,
		Body:     update.Message.Text,
		Origin:   database.OriginUser,
		Channel:  database.ChannelTelegram,
		ChatRef:  strconv.FormatInt(chatID, 10),
	}
	if err := t.store.SaveMessage(ctx, msg); err != nil {
		t.log.ErrorContext(ctx, "Failed to store inbound Telegram message", "chat_id", chatID, "error", err)
		t.send(ctx, chatID, "❌ System Error: could not accept your message, please retry.")
	}
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) {
	_, err := t.bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to send Telegram message", "chat_id", chatID, "error", err)
	}
}
