// Package telegram delivers run notifications to a Telegram chat using the
// tgbotapi library.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"NewsSmoke/pkg/logger"
	"NewsSmoke/pkg/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxMessageLength is the chunk size for outgoing messages; Telegram rejects
// texts above 4096 characters.
const MaxMessageLength = 4000

// Options configures the bot connection.
type Options struct {
	// APIEndpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API server.
	APIEndpoint string
	// Timeout bounds each HTTP request to the Bot API.
	Timeout time.Duration
	// RatePerSecond and Burst pace outgoing messages.
	RatePerSecond float64
	Burst         int
	// Connect is the retry policy for the initial getMe call.
	Connect utils.RetryConfig
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		APIEndpoint:   tgbotapi.APIEndpoint,
		Timeout:       10 * time.Second,
		RatePerSecond: 1,
		Burst:         3,
		Connect: utils.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Bot wraps tgbotapi.BotAPI for sending notifications.
type Bot struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	limiter *utils.RateLimiter
	logger  *logger.Logger
	mu      sync.Mutex
}

// NewBot validates the token via getMe and returns a ready Bot.
// Returns (nil, nil) when token is empty (Telegram not configured).
func NewBot(ctx context.Context, token string, chatID int64, opts Options, log *logger.Logger) (*Bot, error) {
	if token == "" {
		return nil, nil
	}
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: opts.Timeout}

	var api *tgbotapi.BotAPI
	err := utils.ExecuteWithRetryContext(ctx, func() error {
		var err error
		api, err = tgbotapi.NewBotAPIWithClient(token, opts.APIEndpoint, client)
		if isUnauthorized(err) {
			return utils.Permanent(err)
		}
		return err
	}, opts.Connect, func(err error, next time.Duration) {
		if log != nil {
			log.Warn("Telegram connect failed, retrying in %s: %v", next, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	api.Debug = false

	return &Bot{
		api:     api,
		chatID:  chatID,
		limiter: utils.NewRateLimiter(opts.RatePerSecond, opts.Burst),
		logger:  log,
	}, nil
}

// SendMessage sends an HTML-formatted message to the default chat.
// A nil Bot sends nothing.
func (b *Bot) SendMessage(ctx context.Context, text string) error {
	if b == nil {
		return nil
	}
	return b.SendMessageToChat(ctx, b.chatID, text)
}

// SendMessageToChat sends an HTML-formatted message to a specific chat.
// Messages longer than MaxMessageLength are split; the first failing part
// aborts the rest.
func (b *Bot) SendMessageToChat(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return nil
	}

	parts := splitText(text, MaxMessageLength)
	for i, part := range parts {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := b.sendSingleMessage(chatID, part); err != nil {
			return fmt.Errorf("send part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}

// sendSingleMessage sends one message with HTML parse mode and link previews
// off. On parse error, it retries as plain text.
func (b *Bot) sendSingleMessage(chatID int64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := b.api.Send(msg)
	if err != nil && isParseError(err) {
		b.logf("HTML parse error, retrying without formatting: %v", err)
		msg.ParseMode = ""
		msg.Text = plainText(text)
		_, err = b.api.Send(msg)
	}
	return err
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// splitText splits text into chunks of at most maxLen bytes, preferring to
// break at newlines and never inside a UTF-8 sequence.
func splitText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}

		splitPos := maxLen
		if nl := strings.LastIndex(text[:maxLen], "\n"); nl > maxLen/2 {
			splitPos = nl + 1
		}
		for splitPos > 0 && !utf8.RuneStart(text[splitPos]) {
			splitPos--
		}

		parts = append(parts, text[:splitPos])
		text = text[splitPos:]
	}
	return parts
}

var tagPattern = regexp.MustCompile(`</?[a-zA-Z][^<>]*>`)

// plainText drops complete tags and decodes entities. Unterminated markup is
// kept as typed.
func plainText(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, ""))
}

// isParseError returns true if the error is a Telegram entity parse error.
func isParseError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "can't parse") ||
		strings.Contains(msg, "Bad Request: can't parse")
}

func isUnauthorized(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

// GetBotUsername returns the bot's Telegram username (e.g. "MySmokeBot").
// Returns empty string if the bot or API is not initialized.
func (b *Bot) GetBotUsername() string {
	if b == nil || b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}

// GetChatID returns the configured default chat ID.
func (b *Bot) GetChatID() int64 {
	return b.chatID
}

// logf writes to the logger if available.
func (b *Bot) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(format, args...)
	}
}
