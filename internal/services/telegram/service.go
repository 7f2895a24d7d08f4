// Package telegram reports dump and restore runs to a Telegram chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	// Telegram rejects messages above 4096 characters. Error text is the only
	// unbounded part of a report, and escaping can grow it fivefold.
	maxErrorRunes = 600
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a Telegram service talking to the public Bot API.
func New(logger zerolog.Logger) *Impl {
	return NewWithClient(logger, &http.Client{Timeout: 30 * time.Second}, defaultBaseURL)
}

// NewWithClient creates a Telegram service with a custom HTTP client and API
// base URL (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger.With().Str("component", "telegram").Logger(),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

type messagePayload struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// apiResponse is the envelope every Bot API method answers with.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendNotification posts a run report to the configured chat. Delivery
// failures are returned in the result; a report never fails the run.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Str("operation", msg.Operation).
		Bool("success", msg.Success).
		Msg("sending Telegram notification")

	if err := s.post(ctx, cfg, messagePayload{
		ChatID:                cfg.ChatID,
		Text:                  s.formatMessage(msg),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}); err != nil {
		result.Error = err
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent")

	return result, nil
}

func (s *Impl) post(ctx context.Context, cfg models.TelegramConfig, payload messagePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var api apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &api)

	if resp.StatusCode != http.StatusOK {
		if api.Description != "" {
			return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, api.Description)
		}
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	if len(raw) > 0 && !api.OK && api.Description != "" {
		return fmt.Errorf("telegram API rejected message: %s", api.Description)
	}

	return nil
}

// report accumulates the lines of an HTML formatted message.
type report struct {
	strings.Builder
}

func (r *report) line(format string, args ...any) {
	fmt.Fprintf(&r.Builder, format, args...)
	r.WriteByte('\n')
}

// field writes "<emoji> <b>label:</b> value" with value escaped.
func (r *report) field(icon, label, value string) {
	r.line("%s <b>%s:</b> %s", icon, label, html.EscapeString(value))
}

// item writes an indented bullet. Code values are monospaced.
func (r *report) item(label, value string, code bool) {
	value = html.EscapeString(value)
	if code {
		value = "<code>" + value + "</code>"
	}
	r.line("  • %s: %s", label, value)
}

func (s *Impl) formatMessage(msg models.TelegramMessage) string {
	var r report

	title := operationTitle(msg.Operation)
	if msg.Success {
		r.line("✅ <b>%s Successful</b>", title)
	} else {
		r.line("❌ <b>%s Failed</b>", title)
	}
	r.WriteByte('\n')

	r.field("\U0001f5a5", "Host", msg.Host)
	r.field("\U0001f5c4", "Database", msg.Database)
	r.field("⏰", "Started", msg.StartTime.Format(time.DateTime))
	r.field("⏱", "Duration", msg.Duration.Round(time.Second).String())
	r.WriteByte('\n')

	if !msg.Success {
		r.line("<b>⚠️ Error Details:</b>")
		r.item("Failed step", msg.FailedStep, false)
		r.item("Error", truncate(msg.ErrorMessage, maxErrorRunes), true)
		return r.String()
	}

	r.line("<b>\U0001f4e6 Artifact:</b>")
	if msg.Artifact != "" {
		r.item("File", msg.Artifact, true)
	}
	if msg.SizeBytes > 0 {
		r.item("Size", formatBytes(msg.SizeBytes), false)
	}
	if msg.Checksum != "" {
		r.item("SHA-256", msg.Checksum, true)
	}

	switch msg.Operation {
	case models.OperationDump:
		archived := "skipped (local only)"
		if msg.Uploaded {
			archived = "uploaded"
		}
		r.item("Archive", archived, false)
	case models.OperationRestore:
		r.item("Tables restored", fmt.Sprint(msg.Tables), false)
	}

	return r.String()
}

func operationTitle(operation string) string {
	switch operation {
	case models.OperationDump:
		return "Dump"
	case models.OperationRestore:
		return "Restore"
	default:
		return "Backup"
	}
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// formatBytes renders a size with binary units, e.g. "1.5 MiB".
func formatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	size := float64(n)
	for _, unit := range []string{"KiB", "MiB", "GiB", "TiB", "PiB"} {
		size /= 1024
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
	}
	return fmt.Sprintf("%.1f EiB", size/1024)
}
