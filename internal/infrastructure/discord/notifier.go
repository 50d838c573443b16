package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"

	"StudyScanner/internal/config"
	"StudyScanner/internal/domain"
	"StudyScanner/internal/ports"
)

const (
	webhookBase = "https://discord.com/api/webhooks/"

	// Discord rejects messages above these sizes.
	maxEmbeds     = 10
	maxTitleRunes = 256
	maxValueRunes = 1024

	emptyValue = "-"
)

var errMisconfigured = errors.New("discord notifier misconfigured")

// Notifier posts announcements to a Discord channel webhook.
type Notifier struct {
	endpoint   string
	username   string
	color      int
	maxEmbeds  int
	maxRetries int
	client     *resty.Client
	logger     *slog.Logger

	newBackOff func() backoff.BackOff
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier builds a notifier from webhook settings.
func NewNotifier(cfg config.DiscordConfig, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}

	endpoint := cfg.WebhookURL
	if endpoint == "" && cfg.WebhookID != "" && cfg.WebhookToken != "" {
		endpoint = webhookBase + cfg.WebhookID + "/" + cfg.WebhookToken
	}

	limit := cfg.MaxEmbeds
	if limit <= 0 || limit > maxEmbeds {
		limit = maxEmbeds
	}

	retries := cfg.RetryLimit()
	if retries < 0 {
		retries = 0
	}

	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.SetHeader("Content-Type", "application/json")

	return &Notifier{
		endpoint:   endpoint,
		username:   cfg.Username,
		color:      cfg.Color,
		maxEmbeds:  limit,
		maxRetries: retries,
		client:     client,
		logger:     log,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

type webhookMessage struct {
	Content  string  `json:"content"`
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title  string       `json:"title"`
	URL    string       `json:"url,omitempty"`
	Color  int          `json:"color,omitempty"`
	Fields []embedField `json:"fields"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Deliver sends one webhook message for the announcement. Rate limits and
// server errors are retried; other rejections fail immediately.
func (n *Notifier) Deliver(ctx context.Context, a domain.Announcement) error {
	if n.endpoint == "" || n.client == nil {
		return errMisconfigured
	}

	msg := n.render(a)
	attempt := 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, n.post(ctx, msg)
	},
		backoff.WithBackOff(n.newBackOff()),
		backoff.WithMaxTries(uint(n.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			n.logger.Warn("discord: delivery retry", "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("discord: deliver after %d attempt(s): %w", attempt, err)
	}

	n.logger.Debug("discord: announcement delivered", "embeds", len(msg.Embeds), "total", a.Total)
	return nil
}

func (n *Notifier) post(ctx context.Context, msg webhookMessage) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(n.endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("post webhook: %w", err)
	}

	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		if secs, ok := retryAfter(resp.Header().Get("Retry-After")); ok {
			return backoff.RetryAfter(secs)
		}
		return fmt.Errorf("discord rate limited: %s", resp.Status())
	case code >= 500:
		return fmt.Errorf("discord server error: %s", resp.Status())
	default:
		return backoff.Permanent(fmt.Errorf("discord rejected message: %s: %s", resp.Status(), truncate(resp.String(), 200)))
	}
}

func (n *Notifier) render(a domain.Announcement) webhookMessage {
	cards := a.Cards
	if len(cards) > n.maxEmbeds {
		cards = cards[:n.maxEmbeds]
	}

	embeds := make([]embed, 0, len(cards))
	for _, c := range cards {
		embeds = append(embeds, embed{
			Title: truncate(orDash(c.Title), maxTitleRunes),
			URL:   c.Link,
			Color: n.color,
			Fields: []embedField{
				{Name: "Credits", Value: truncate(orDash(c.Credits), maxValueRunes)},
				{Name: "Description", Value: truncate(orDash(c.Description), maxValueRunes)},
			},
		})
	}

	return webhookMessage{
		Content:  a.Summary,
		Username: n.username,
		Embeds:   embeds,
	}
}

// retryAfter reads Discord's Retry-After header, which may be fractional.
func retryAfter(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int(math.Ceil(f)), true
}

func orDash(s string) string {
	if s == "" {
		return emptyValue
	}
	return s
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
