package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// DefaultTelegramURL es la base de la Bot API.
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramSender envía eventos a un chat mediante sendMessage en modo HTML.
type TelegramSender struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// TelegramOption configura un TelegramSender.
type TelegramOption func(*TelegramSender)

// WithTelegramURL cambia la base de la API (tests).
func WithTelegramURL(baseURL string) TelegramOption {
	return func(t *TelegramSender) { t.baseURL = strings.TrimRight(baseURL, "/") }
}

// NewTelegramSender crea un sender para el bot y chat dados.
func NewTelegramSender(token, chatID string, opts ...TelegramOption) *TelegramSender {
	t := &TelegramSender{
		token:   token,
		chatID:  chatID,
		baseURL: DefaultTelegramURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send publica el evento formateado en el chat.
func (t *TelegramSender) Send(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  Format(ev),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// el error de net/http incluye la URL con el token
		return fmt.Errorf("telegram: send %s: request failed", ev.Kind)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// Name identifica el sender en los logs.
func (t *TelegramSender) Name() string {
	return "telegram"
}
