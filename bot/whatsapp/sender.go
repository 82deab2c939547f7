package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zoomigo/rentalbot/core/config"
	"github.com/zoomigo/rentalbot/core/httpx"
	"github.com/zoomigo/rentalbot/core/logger"
)

const defaultAPIBaseURL = "https://graph.facebook.com"

const sendTimeout = 15 * time.Second

// Sender pushes outbound text messages through the WhatsApp Cloud API.
type Sender struct {
	cfg    config.WhatsappConfig
	client *http.Client
}

func NewSender(cfg config.WhatsappConfig, client *http.Client) *Sender {
	if client == nil {
		client = httpx.NewClient()
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	return &Sender{cfg: cfg, client: client}
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers a text message to the given phone number. When the Cloud
// API credentials are not configured the send is skipped with a warning so
// local runs stay usable.
func (s *Sender) SendText(ctx context.Context, to, body string) error {
	if strings.TrimSpace(s.cfg.AccessToken) == "" || strings.TrimSpace(s.cfg.PhoneNumberID) == "" {
		logger.Warn(ctx, "wa", "send.skip",
			slog.String("phone", to),
			slog.String("cause", "cloud api credentials not configured"),
		)
		return nil
	}

	raw, err := json.Marshal(textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimRight(s.cfg.APIBaseURL, "/"), s.cfg.APIVersion, s.cfg.PhoneNumberID)

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error(ctx, "wa", "send.failed",
			slog.String("phone", to),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Error(ctx, "wa", "send.failed",
			slog.String("phone", to),
			slog.Int("http_code", resp.StatusCode),
			slog.String("payload", logger.Sanitize(string(snippet))),
		)
		return fmt.Errorf("send message: unexpected status %d", resp.StatusCode)
	}

	logger.Info(ctx, "wa", "send.ok",
		slog.String("phone", to),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}
