package monitortest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// Notifier records notifications.
type Notifier struct {
	mu   sync.Mutex
	sent []monitor.Notification
}

var _ monitor.Notifier = (*Notifier)(nil)

// Notify implements monitor.Notifier.
func (n *Notifier) Notify(_ context.Context, msg monitor.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

// Sent returns recorded notifications, filtered to kind when kind is non-empty.
func (n *Notifier) Sent(kind monitor.NotificationKind) []monitor.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []monitor.Notification
	for _, msg := range n.sent {
		if kind == "" || msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

// Evidence is an in-memory monitor.EvidenceSink.
type Evidence struct {
	mu     sync.Mutex
	Saved  map[string][]byte
	Faults map[string]int
}

var _ monitor.EvidenceSink = (*Evidence)(nil)

// NewEvidence returns an empty sink.
func NewEvidence() *Evidence {
	return &Evidence{Saved: map[string][]byte{}, Faults: map[string]int{}}
}

// Save implements monitor.EvidenceSink.
func (e *Evidence) Save(_ context.Context, vendor, plant string, c monitor.Capture) (string, error) {
	key := fmt.Sprintf("%s/%s - %s", vendor, plant, c.Kind)
	if c.Frame > 0 {
		key = fmt.Sprintf("%s/%s - inversor %d", vendor, plant, c.Frame)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Saved[key] = c.Data
	return key, nil
}

// SaveFault implements monitor.EvidenceSink.
func (e *Evidence) SaveFault(_ context.Context, vendor, plant string, at time.Time, data []byte) (string, error) {
	key := fmt.Sprintf("%s/Falhas/falha %s - %s", vendor, plant, at.Format(time.DateOnly))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Saved[key] = data
	e.Faults[vendor+"/"+plant]++
	return key, nil
}

// CountFaults implements monitor.EvidenceSink.
func (e *Evidence) CountFaults(vendor, plant string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Faults[vendor+"/"+plant], nil
}

// Has reports whether an artifact was saved under key.
func (e *Evidence) Has(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.Saved[key]
	return ok
}

// Store is an in-memory monitor.MetricsStore.
type Store struct {
	mu      sync.Mutex
	Records map[string][]monitor.MonthlyRecord
}

var _ monitor.MetricsStore = (*Store)(nil)

// Append implements monitor.MetricsStore.
func (s *Store) Append(_ context.Context, vendor string, period monitor.Period, rec monitor.MonthlyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Records == nil {
		s.Records = map[string][]monitor.MonthlyRecord{}
	}
	key := fmt.Sprintf("%s/%d", vendor, int(period.Month))
	s.Records[key] = append(s.Records[key], rec)
	return nil
}

// Clock is a fixed monitor.Clock.
type Clock struct {
	T time.Time
}

// Now implements monitor.Clock.
func (c Clock) Now() time.Time { return c.T }
