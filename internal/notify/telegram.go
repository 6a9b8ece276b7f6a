// Package notify delivers saved reports to chat channels.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/ghosthunter/internal/config"
)

// Telegram allows 4096 characters per message; chunks leave room for the
// HTML entities added by conversion.
const maxChunk = 3500

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// Telegram posts report notices to one chat.
type Telegram struct {
	token      string
	chatID     int64
	proxy      string
	botFactory BotFactory
	log        *slog.Logger

	mu  sync.Mutex
	bot TelegramBot
}

func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	return NewTelegramWithFactory(cfg, defaultBotFactory)
}

// NewTelegramWithFactory creates a Telegram notifier with custom bot factory (for testing)
func NewTelegramWithFactory(cfg config.TelegramConfig, factory BotFactory) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	return &Telegram{
		token:      cfg.Token,
		chatID:     cfg.ChatID,
		proxy:      cfg.Proxy,
		botFactory: factory,
		log:        slog.Default().With("component", "notify"),
	}, nil
}

// initBot connects on first use so a misconfigured bot never blocks an
// investigation from starting.
func (t *Telegram) initBot() (TelegramBot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}

	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	t.log.Info("authorized", "bot", bot.GetSelf().UserName)
	return bot, nil
}

// NotifyReport sends a notice naming the saved report followed by its text.
func (t *Telegram) NotifyReport(ctx context.Context, company, path, content string) error {
	header := fmt.Sprintf("**Forensic report ready: %s**\nSaved to `%s`", company, path)
	if err := t.Send(ctx, header); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return t.Send(ctx, content)
}

// Send posts markdown text as Telegram HTML, split into chunks. A chunk the
// server rejects as HTML is resent as plain text.
func (t *Telegram) Send(ctx context.Context, text string) error {
	bot, err := t.initBot()
	if err != nil {
		return err
	}
	for _, chunk := range splitChunks(text, maxChunk) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, toTelegramHTML(chunk))
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := bot.Send(msg); err != nil {
			t.log.Debug("html send failed, retrying as plain text", "error", err)
			msg.ParseMode = ""
			msg.Text = chunk
			if _, err2 := bot.Send(msg); err2 != nil {
				return fmt.Errorf("send telegram message: %w", err2)
			}
		}
	}
	return nil
}

// splitChunks cuts s into pieces of at most n bytes, preferring newline
// boundaries and never splitting a UTF-8 sequence.
func splitChunks(s string, n int) []string {
	var chunks []string
	for len(s) > 0 {
		if len(s) <= n {
			chunks = append(chunks, s)
			break
		}
		cut := strings.LastIndex(s[:n], "\n")
		if cut <= 0 {
			cut = n
			for cut > 0 && !isRuneStart(s[cut]) {
				cut--
			}
			if cut == 0 {
				cut = n
			}
		}
		chunks = append(chunks, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// toTelegramHTML converts basic markdown to Telegram HTML.
func toTelegramHTML(s string) string {
	// Escape HTML entities first
	s = html.EscapeString(s)
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&#34;", "\"")

	// Headings: # Title -> <b>Title</b>; bullets: * item -> • item
	lines := strings.Split(s, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		trimmed := strings.TrimLeft(line, "#")
		if len(trimmed) < len(line) && strings.HasPrefix(trimmed, " ") {
			lines[i] = "<b>" + strings.TrimSpace(trimmed) + "</b>"
			continue
		}
		body := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(body, "* ") {
			lines[i] = line[:len(line)-len(body)] + "• " + body[2:]
		}
	}
	s = strings.Join(lines, "\n")

	// Code blocks: ```...``` -> <pre>...</pre>
	for {
		start := strings.Index(s, "```")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+3:], "```")
		if end == -1 {
			break
		}
		end += start + 3
		code := s[start+3 : end]
		// Strip optional language tag on first line
		if nl := strings.Index(code, "\n"); nl >= 0 {
			firstLine := strings.TrimSpace(code[:nl])
			if len(firstLine) > 0 && !strings.Contains(firstLine, " ") {
				code = code[nl+1:]
			}
		}
		s = s[:start] + "<pre>" + code + "</pre>" + s[end+3:]
	}

	s = replacePairs(s, "`", "<code>", "</code>")
	s = replacePairs(s, "**", "<b>", "</b>")
	// Italic after bold to avoid conflicts
	s = replacePairs(s, "*", "<i>", "</i>")
	return s
}

// replacePairs wraps text between matched delimiters in open/close tags.
func replacePairs(s, delim, open, closeTag string) string {
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			return s
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			return s
		}
		end += start + len(delim)
		s = s[:start] + open + s[start+len(delim):end] + closeTag + s[end+len(delim):]
	}
}
