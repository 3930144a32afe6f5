package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
	"github.com/projectdiscovery/gologger"
)

// DiscordNotifier handles sending notifications to Discord webhook
type DiscordNotifier struct {
	webhookURL string
	httpClient *http.Client
	enabled    bool
	maxRetries int
	baseDelay  time.Duration
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents the footer of a Discord embed
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordWebhookPayload represents the payload sent to Discord webhook
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// NotificationStep represents the stages of a generation run
type NotificationStep string

const (
	StepRunStarted   NotificationStep = "run_started"
	StepRunCompleted NotificationStep = "run_completed"
	StepRunFailed    NotificationStep = "run_failed"
)

// Color constants for Discord embeds
const (
	ColorInfo    = 0x3498db // Blue
	ColorSuccess = 0x2ecc71 // Green
	ColorWarning = 0xf39c12 // Orange
	ColorError   = 0xe74c3c // Red
)

// Discord rejects field values longer than this
const maxFieldValue = 1024

// NewDiscordNotifier creates a notifier posting to webhookURL.
// An empty URL yields a disabled notifier.
func NewDiscordNotifier(webhookURL string, timeout time.Duration) *DiscordNotifier {
	if webhookURL == "" {
		return &DiscordNotifier{enabled: false}
	}

	return &DiscordNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		enabled:    true,
		maxRetries: 3,
		baseDelay:  time.Second,
	}
}

// IsEnabled returns whether Discord notifications are enabled
func (d *DiscordNotifier) IsEnabled() bool {
	return d != nil && d.enabled
}

// NotifyStep sends a notification for a stage of the run
func (d *DiscordNotifier) NotifyStep(ctx context.Context, step NotificationStep, summary models.RunSummary, err error) error {
	if !d.IsEnabled() {
		return nil
	}

	payload := d.createPayload(step, summary, err)
	return d.SendWebhookWithRetry(ctx, payload)
}

// NotifyRunStarted sends notification when a run starts
func (d *DiscordNotifier) NotifyRunStarted(ctx context.Context, summary models.RunSummary) error {
	return d.NotifyStep(ctx, StepRunStarted, summary, nil)
}

// NotifyRunCompleted sends notification when a run finishes and its rules are stored
func (d *DiscordNotifier) NotifyRunCompleted(ctx context.Context, summary models.RunSummary) error {
	return d.NotifyStep(ctx, StepRunCompleted, summary, nil)
}

// NotifyRunFailed sends notification when a run aborts
func (d *DiscordNotifier) NotifyRunFailed(ctx context.Context, summary models.RunSummary, err error) error {
	return d.NotifyStep(ctx, StepRunFailed, summary, err)
}

// createPayload creates a Discord webhook payload based on the step and data
func (d *DiscordNotifier) createPayload(step NotificationStep, summary models.RunSummary, err error) DiscordWebhookPayload {
	embed := DiscordEmbed{
		Timestamp: time.Now().Format(time.RFC3339),
		Fields: []DiscordEmbedField{
			{Name: "Run ID", Value: summary.RunID, Inline: true},
		},
	}

	switch step {
	case StepRunStarted:
		embed.Title = "⚡ Rule Generation Started"
		embed.Description = "Scanning domain suffixes"
		embed.Color = ColorInfo

	case StepRunCompleted:
		embed.Title = "✅ Rule Generation Completed"
		embed.Description = fmt.Sprintf("Generated %d rules in %s", summary.Rules, summary.Duration().Round(time.Millisecond))
		embed.Color = ColorSuccess
		if summary.Rules == 0 {
			embed.Color = ColorWarning
		}
		embed.Fields = append(embed.Fields,
			DiscordEmbedField{Name: "Domains", Value: fmt.Sprintf("%d", summary.DomainsSeen), Inline: true},
			DiscordEmbedField{Name: "Suffixes Checked", Value: fmt.Sprintf("%d", summary.SuffixesValidated), Inline: true},
			DiscordEmbedField{Name: "Valid Suffixes", Value: fmt.Sprintf("%d", summary.ValidSuffixes), Inline: true},
			DiscordEmbedField{Name: "Invalid Suffixes", Value: fmt.Sprintf("%d", summary.InvalidSuffixes), Inline: true},
			DiscordEmbedField{Name: "Rules", Value: fmt.Sprintf("%d", summary.Rules), Inline: true},
		)

	case StepRunFailed:
		embed.Title = "❌ Rule Generation Failed"
		embed.Description = "Run aborted before rules were stored"
		embed.Color = ColorError
		if err != nil {
			embed.Fields = append(embed.Fields, DiscordEmbedField{
				Name: "Error", Value: truncate(err.Error(), maxFieldValue), Inline: false,
			})
		}
	}

	embed.Footer = &DiscordEmbedFooter{
		Text: "AllSafe ASM Rule Generator",
	}

	return DiscordWebhookPayload{
		Username: "AllSafe ASM Bot",
		Embeds:   []DiscordEmbed{embed},
	}
}

// sendWebhook sends the webhook payload to Discord
func (d *DiscordNotifier) sendWebhook(ctx context.Context, payload DiscordWebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return common.NewInternalError("failed to marshal webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return common.NewConfigurationError("DISCORD_WEBHOOK_URL", fmt.Sprintf("failed to create HTTP request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return common.NewNetworkError("failed to send Discord webhook", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return common.NewNetworkError(fmt.Sprintf("Discord webhook failed with status %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return common.NewConfigurationError("DISCORD_WEBHOOK_URL", fmt.Sprintf("Discord webhook rejected with status %d", resp.StatusCode))
	}

	gologger.Debug().Msgf("Discord webhook sent successfully. Status: %d", resp.StatusCode)
	return nil
}

// SendWebhookWithRetry sends a webhook with exponential backoff
func (d *DiscordNotifier) SendWebhookWithRetry(ctx context.Context, payload DiscordWebhookPayload) error {
	var err error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if err = d.sendWebhook(ctx, payload); err == nil {
			return nil
		}

		if !common.IsRetryable(err) {
			return fmt.Errorf("failed to send Discord webhook: %w", err)
		}
		if attempt == d.maxRetries {
			break
		}

		delay := d.baseDelay << attempt
		gologger.Warning().Msgf("Discord webhook failed (attempt %d/%d), retrying in %v: %v", attempt+1, d.maxRetries+1, delay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed to send Discord webhook after %d attempts: %w", d.maxRetries+1, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n-3], "") + "..."
}
