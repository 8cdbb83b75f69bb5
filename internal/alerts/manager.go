package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/ring-engine/internal/metrics"
	"github.com/rawblock/ring-engine/pkg/models"
)

// Ring Alerts
//
// Every ring in a completed report is turned into a structured alert:
//   - broadcast to connected dashboards through the callback
//   - pushed to registered webhooks whose minimum severity it meets
//   - kept in a bounded in-memory history for the alerts endpoint
//
// Severity comes from the ring's risk score. Low-severity rings are
// recorded in the report only and never alerted.

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const AlertTypeFraudRing = "fraud_ring"

var severityLevels = map[string]int{
	SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3, SeverityCritical: 4,
}

// Alert is one fraud-ring notification.
type Alert struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Severity    string             `json:"severity"`
	AlertType   string             `json:"alert_type"`
	RunID       string             `json:"run_id,omitempty"`
	RingID      string             `json:"ring_id"`
	PatternType models.PatternType `json:"pattern_type"`
	RiskScore   float64            `json:"risk_score"`
	Members     []string           `json:"member_accounts"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
}

// WebhookEndpoint is a registered webhook receiver.
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity string            `json:"min_severity"`
}

// Manager handles alert emission and webhook delivery.
type Manager struct {
	mu           sync.RWMutex
	webhooks     []WebhookEndpoint
	recentAlerts []Alert
	maxHistory   int
	maxPerRun    int
	httpClient   *http.Client
	broadcast    func(Alert)
	pending      sync.WaitGroup
}

// DefaultMaxPerRun bounds the alerts one report can raise. A dense batch
// can yield hundreds of rings; only the riskiest are pushed out.
const DefaultMaxPerRun = 50

// NewManager creates an alert manager. broadcastFn may be nil.
func NewManager(broadcastFn func(Alert)) *Manager {
	return &Manager{
		webhooks:     make([]WebhookEndpoint, 0),
		recentAlerts: make([]Alert, 0),
		maxHistory:   1000,
		maxPerRun:    DefaultMaxPerRun,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		broadcast:    broadcastFn,
	}
}

// SeverityForScore maps a ring risk score onto an alert severity.
func SeverityForScore(score float64) string {
	switch {
	case score >= 95:
		return SeverityCritical
	case score >= 90:
		return SeverityHigh
	case score >= 80:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ValidSeverity reports whether s names a known severity level.
func ValidSeverity(s string) bool {
	_, ok := severityLevels[s]
	return ok
}

// RegisterWebhook adds a webhook endpoint.
func (m *Manager) RegisterWebhook(name, url, minSeverity string, headers map[string]string) error {
	if !ValidSeverity(minSeverity) {
		return fmt.Errorf("webhook %s: unknown severity %q", name, minSeverity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.webhooks = append(m.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})

	log.Printf("[Alert] Registered webhook: %s → %s (min: %s)", name, url, minSeverity)
	return nil
}

// RemoveWebhook removes a webhook by name.
func (m *Manager) RemoveWebhook(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, wh := range m.webhooks {
		if wh.Name == name {
			m.webhooks = append(m.webhooks[:i], m.webhooks[i+1:]...)
			return
		}
	}
}

// Emit stores, broadcasts and forwards a single alert.
func (m *Manager) Emit(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	m.mu.Lock()
	m.recentAlerts = append(m.recentAlerts, alert)
	if len(m.recentAlerts) > m.maxHistory {
		m.recentAlerts = m.recentAlerts[len(m.recentAlerts)-m.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(m.webhooks))
	copy(webhooks, m.webhooks)
	m.mu.Unlock()

	metrics.RecordAlert(alert.Severity)

	if m.broadcast != nil {
		m.broadcast(alert)
	}

	for _, wh := range webhooks {
		if !wh.Enabled || !severityMeetsThreshold(alert.Severity, wh.MinSeverity) {
			continue
		}
		m.pending.Add(1)
		go func(wh WebhookEndpoint) {
			defer m.pending.Done()
			m.sendWebhook(wh, alert)
		}(wh)
	}

	log.Printf("[Alert] [%s] %s: %s (run: %s)", alert.Severity, alert.RingID, alert.Title, alert.RunID)
}

// SetMaxPerRun changes the per-report alert cap. n <= 0 removes it.
func (m *Manager) SetMaxPerRun(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxPerRun = n
}

// EmitFromReport raises one alert per ring above low severity, in report
// order, and returns how many were emitted. When more rings qualify than
// the per-run cap allows, the highest-risk ones are kept.
func (m *Manager) EmitFromReport(runID string, report *models.DetectionReport) int {
	eligible := make([]int, 0, len(report.FraudRings))
	for i, ring := range report.FraudRings {
		if SeverityForScore(ring.RiskScore) != SeverityLow {
			eligible = append(eligible, i)
		}
	}

	m.mu.RLock()
	limit := m.maxPerRun
	m.mu.RUnlock()

	if limit > 0 && len(eligible) > limit {
		log.Printf("[Alert] Run %s: %d rings qualify, alerting on the top %d", runID, len(eligible), limit)
		sort.SliceStable(eligible, func(a, b int) bool {
			return report.FraudRings[eligible[a]].RiskScore > report.FraudRings[eligible[b]].RiskScore
		})
		eligible = eligible[:limit]
		sort.Ints(eligible)
	}

	for _, i := range eligible {
		ring := report.FraudRings[i]
		m.Emit(Alert{
			Severity:    SeverityForScore(ring.RiskScore),
			AlertType:   AlertTypeFraudRing,
			RunID:       runID,
			RingID:      ring.RingID,
			PatternType: ring.PatternType,
			RiskScore:   ring.RiskScore,
			Members:     ring.MemberAccounts,
			Title:       fmt.Sprintf("%s ring detected", ring.PatternType),
			Description: describe(ring),
		})
	}
	return len(eligible)
}

// Recent returns up to limit alerts, newest first, at or above minSeverity.
// An empty minSeverity matches everything.
func (m *Manager) Recent(limit int, minSeverity string) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Alert, 0)
	for i := len(m.recentAlerts) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		a := m.recentAlerts[i]
		if minSeverity != "" && !severityMeetsThreshold(a.Severity, minSeverity) {
			continue
		}
		result = append(result, a)
	}
	return result
}

// Flush blocks until in-flight webhook deliveries finish.
func (m *Manager) Flush() {
	m.pending.Wait()
}

func (m *Manager) sendWebhook(wh WebhookEndpoint, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal alert: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		log.Printf("[Webhook] Failed to create request for %s: %v", wh.Name, err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Printf("[Webhook] Failed to send to %s: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Webhook] %s returned status %d", wh.Name, resp.StatusCode)
	}
}

func severityMeetsThreshold(severity, minimum string) bool {
	return severityLevels[severity] >= severityLevels[minimum]
}

func describe(ring models.Ring) string {
	members := ring.MemberAccounts
	suffix := ""
	if len(members) > 6 {
		suffix = fmt.Sprintf(" (+%d more)", len(members)-6)
		members = members[:6]
	}
	return fmt.Sprintf("%d accounts, risk %.1f: %s%s",
		len(ring.MemberAccounts), ring.RiskScore, strings.Join(members, ", "), suffix)
}
