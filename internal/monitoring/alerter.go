package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metric-guardrails/internal/config"
	"github.com/sells-group/metric-guardrails/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertNullAsBugDefect       AlertType = "null_as_bug_defect"
	AlertTemporalViolationRate AlertType = "temporal_violation_rate"
	AlertExploratoryTierShare  AlertType = "exploratory_tier_share"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and delivers
// alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.NewRetryConfig(cfg.WebhookMaxAttempts, cfg.WebhookInitialBackoffMillis)
	retry.OnRetry = resilience.RetryLogger("monitoring.webhook")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Any defect alerts regardless of sample size; rate alerts wait for
// MinTraces traces.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Defects > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNullAsBugDefect,
			Severity: "critical",
			Message: fmt.Sprintf(
				"%d metric(s) had positive confidence but no usable representation",
				snap.Defects,
			),
			Details: map[string]any{
				"defects":      snap.Defects,
				"total_traces": snap.TotalTraces,
			},
			Timestamp: now,
		})
	}

	if snap.TotalTraces < a.cfg.MinTraces {
		return alerts
	}

	if a.cfg.TemporalViolationThreshold > 0 && snap.TemporalViolationRate > a.cfg.TemporalViolationThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertTemporalViolationRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Temporal violation rate %.1f%% exceeds threshold %.1f%% (%d violations / %d traces)",
				snap.TemporalViolationRate*100, a.cfg.TemporalViolationThreshold*100,
				snap.TemporalViolations, snap.TotalTraces,
			),
			Details: map[string]any{
				"rate":       snap.TemporalViolationRate,
				"threshold":  a.cfg.TemporalViolationThreshold,
				"violations": snap.TemporalViolations,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ExploratoryShareThreshold > 0 && snap.ExploratoryShare > a.cfg.ExploratoryShareThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertExploratoryTierShare,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of metrics fell to %s, above threshold %.1f%%",
				snap.ExploratoryShare*100, ExploratoryTier, a.cfg.ExploratoryShareThreshold*100,
			),
			Details: map[string]any{
				"share":     snap.ExploratoryShare,
				"threshold": a.cfg.ExploratoryShareThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resilience.StatusError("monitoring: webhook", resp.StatusCode)
}
