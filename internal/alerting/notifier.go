// Package alerting turns pipeline events into operator notifications and
// delivers them through Telegram or the log.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/httpx"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Field is one labelled line of an alert body.
type Field struct {
	Name  string
	Value string
}

// Alert is a rendered notification.
type Alert struct {
	Severity Severity
	Title    string
	Token    string
	Fields   []Field
	At       time.Time
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Render formats an alert as plain text.
func Render(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(a.Severity)), a.Title)
	if a.Token != "" {
		fmt.Fprintf(&b, "Token: %s\n", a.Token)
	}
	for _, f := range a.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
	}
	if !a.At.IsZero() {
		fmt.Fprintf(&b, "At: %s UTC", a.At.UTC().Format(time.RFC3339))
	}
	return strings.TrimRight(b.String(), "\n")
}

// DefaultTelegramURL is the public Bot API root.
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier posts alerts through the Bot API sendMessage method.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *httpx.Client
	log      zerolog.Logger
}

// NewTelegramNotifier creates a notifier. An empty baseURL selects the
// public Bot API. Sends are limited to one per second, the Bot API's
// per-chat allowance.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, log zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   httpx.NewClient(timeout, httpx.WithLimiter(httpx.NewLimiter(1, 1))),
		log:      log.With().Str("component", "alert_telegram").Logger(),
	}
}

var _ Notifier = (*TelegramNotifier)(nil)

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify sends one message.
func (n *TelegramNotifier) Notify(ctx context.Context, a Alert) error {
	payload := map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     Render(a),
		"disable_web_page_preview": true,
	}
	var reply telegramReply
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	if err := n.client.PostJSON(ctx, url, nil, payload, &reply); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("telegram rejected message: %s", reply.Description)
	}
	n.log.Debug().Str("title", a.Title).Str("token", a.Token).Msg("alert sent")
	return nil
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "alert_log").Logger()}
}

var _ Notifier = (*LogNotifier)(nil)

// Notify logs the alert at a level matching its severity.
func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	ev := n.log.Info()
	switch a.Severity {
	case SeverityWarning:
		ev = n.log.Warn()
	case SeverityCritical:
		ev = n.log.Error()
	}
	for _, f := range a.Fields {
		ev = ev.Str(f.Name, f.Value)
	}
	ev.Str("token", a.Token).Msg(a.Title)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

var _ Notifier = Multi(nil)

// Notify calls each notifier in order.
func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
