// Package notification delivers operational alerts about report refreshes
// to external channels.
package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of sending them.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// RefreshWatcher turns refresh outcomes into alerts. It only speaks on
// changes: the first failure, escalation to critical after critAfter
// consecutive failures, and recovery.
type RefreshWatcher struct {
	n         Notifier
	critAfter int

	mu       sync.Mutex
	failures int
}

// NewRefreshWatcher creates a watcher. critAfter < 1 means 3.
func NewRefreshWatcher(n Notifier, critAfter int) *RefreshWatcher {
	if critAfter < 1 {
		critAfter = 3
	}
	return &RefreshWatcher{n: n, critAfter: critAfter}
}

// Observe records one refresh outcome and sends an alert when the state changes.
func (w *RefreshWatcher) Observe(ctx context.Context, t time.Time, err error) {
	w.mu.Lock()
	var alert *Alert
	if err != nil {
		w.failures++
		switch w.failures {
		case 1:
			alert = &Alert{Level: AlertWarning, Title: "report refresh failed", Message: err.Error()}
		case w.critAfter:
			alert = &Alert{
				Level:   AlertCritical,
				Title:   "report refresh failing",
				Message: fmt.Sprintf("%d consecutive failures, last: %v", w.failures, err),
			}
		}
	} else {
		if w.failures > 0 {
			alert = &Alert{
				Level:   AlertInfo,
				Title:   "report refresh recovered",
				Message: fmt.Sprintf("recovered at %s after %d failures", t.UTC().Format(time.RFC3339), w.failures),
			}
		}
		w.failures = 0
	}
	w.mu.Unlock()

	if alert == nil {
		return
	}
	if err := w.n.Send(ctx, *alert); err != nil {
		log.Printf("[notify] send %q: %v", alert.Title, err)
	}
}
