package monitor

import (
	"context"
	"time"
)

// VendorAdapter encapsulates the site-specific steps of one vendor dashboard. The
// generic workflow sequences these calls; adapters hold selectors and vocabulary.
type VendorAdapter interface {
	Name() string
	// Login authenticates the hub page. Vendors that authenticate per plant may no-op.
	Login(ctx context.Context, hub Page) error
	// OpenPlant selects plant and returns the page holding its dashboard, which may be
	// hub itself or a newly adopted tab. Unknown plants yield ErrPlantNotFound.
	OpenPlant(ctx context.Context, hub Page, plant string) (Page, error)
	CaptureEvidence(ctx context.Context, page Page, plant string) ([]Capture, error)
	InverterStatuses(ctx context.Context, page Page, plant string) ([]InverterStatus, error)
	IsOnline(status string) bool
	CheckFaultHistory(ctx context.Context, page Page, plant string) (FaultCheck, error)
	// ExtractMonthly reads the vendor-specific figures for period. Vendors without a
	// monthly source return ErrMonthlyUnsupported.
	ExtractMonthly(ctx context.Context, page Page, plant string, period Period) ([]Field, error)
	// ClosePlant releases plant-specific state; page is the value OpenPlant returned.
	ClosePlant(ctx context.Context, hub, page Page, plant string) error
}

// Notifier delivers notifications. Implementations never return transport errors.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// MetricsStore persists monthly records.
type MetricsStore interface {
	Append(ctx context.Context, vendor string, period Period, rec MonthlyRecord) error
}

// EvidenceSink writes evidence artifacts and answers questions about stored faults.
type EvidenceSink interface {
	Save(ctx context.Context, vendor, plant string, c Capture) (string, error)
	SaveFault(ctx context.Context, vendor, plant string, at time.Time, data []byte) (string, error)
	CountFaults(vendor, plant string) (int, error)
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}
