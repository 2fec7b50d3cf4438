package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Message is one formatted chat message headed to a channel's transport.
type Message struct {
	Title     string
	Body      string
	IsError   bool
	Timestamp time.Time
}

// Transport delivers a formatted Message to one external chat surface.
type Transport interface {
	Send(msg Message) error
	Name() string
	IsEnabled() bool
}

// TelegramTransport posts messages to a Telegram bot chat.
type TelegramTransport struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig configures a TelegramTransport.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramTransport builds a Telegram transport, disabled if any
// required field is empty.
func NewTelegramTransport(cfg TelegramConfig) *TelegramTransport {
	return &TelegramTransport{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramTransport) Name() string    { return "telegram" }
func (t *TelegramTransport) IsEnabled() bool { return t.enabled }

func (t *TelegramTransport) Send(msg Message) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", msg.Title, msg.Body),
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// DiscordTransport posts messages to a Discord incoming webhook.
type DiscordTransport struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig configures a DiscordTransport.
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordTransport builds a Discord transport, disabled without a webhook URL.
func NewDiscordTransport(cfg DiscordConfig) *DiscordTransport {
	return &DiscordTransport{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordTransport) Name() string    { return "discord" }
func (d *DiscordTransport) IsEnabled() bool { return d.enabled }

func (d *DiscordTransport) Send(msg Message) error {
	if !d.enabled {
		return nil
	}

	color := 0x2ECC71
	if msg.IsError {
		color = 0xE74C3C
	}

	embed := map[string]interface{}{
		"title":       msg.Title,
		"description": msg.Body,
		"color":       color,
		"timestamp":   msg.Timestamp.Format(time.RFC3339),
	}
	payload := map[string]interface{}{"embeds": []map[string]interface{}{embed}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return nil
}
