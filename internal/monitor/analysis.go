package monitor

import (
	"strings"
	"time"
)

// AnomalyReport is the outcome of analyzing one plant. It is computed without side
// effects; the workflow turns it into notifications.
type AnomalyReport struct {
	Vendor     string
	Plant      string
	Offline    int
	OfflineIDs []string
	Fault      FaultCheck
}

// NormalizeStatus lowercases s and collapses surrounding whitespace.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Analyze counts the statuses isOnline rejects and folds in the fault check.
func Analyze(vendor, plant string, statuses []InverterStatus, isOnline func(string) bool, fault FaultCheck) AnomalyReport {
	r := AnomalyReport{Vendor: vendor, Plant: plant, Fault: fault}
	for _, s := range statuses {
		if isOnline(NormalizeStatus(s.Status)) {
			continue
		}
		r.Offline++
		r.OfflineIDs = append(r.OfflineIDs, s.ID)
	}
	return r
}

// HasAnomaly reports whether any notification is due.
func (r AnomalyReport) HasAnomaly() bool {
	return r.Offline > 0 || r.Fault.Found
}

// Notifications returns the alerts r calls for, offline inverters first.
func (r AnomalyReport) Notifications(at time.Time) []Notification {
	var out []Notification
	if r.Offline > 0 {
		out = append(out, Notification{
			Kind:   KindOfflineInverter,
			Vendor: r.Vendor,
			Plant:  r.Plant,
			Count:  r.Offline,
			At:     at,
		})
	}
	if r.Fault.Found {
		sev := r.Fault.Severity
		if sev == "" {
			sev = SeverityUnspecified
		}
		out = append(out, Notification{
			Kind:     KindFaultHistory,
			Vendor:   r.Vendor,
			Plant:    r.Plant,
			Severity: sev,
			At:       at,
		})
	}
	return out
}
