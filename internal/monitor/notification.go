package monitor

import "time"

// NotificationKind selects the template and attachment policy of a notification.
type NotificationKind string

// Supported notification kinds.
const (
	KindOfflineInverter NotificationKind = "offline-inverter"
	KindFaultHistory    NotificationKind = "fault-history"
	KindInternalError   NotificationKind = "internal-error"
)

// Valid reports whether k is one of the supported kinds.
func (k NotificationKind) Valid() bool {
	switch k {
	case KindOfflineInverter, KindFaultHistory, KindInternalError:
		return true
	default:
		return false
	}
}

// Notification is a transient alert handed to the dispatcher. Fields that do not
// apply to the kind are left empty.
type Notification struct {
	Kind     NotificationKind
	Vendor   string
	Plant    string
	Count    int
	Err      error
	Location string
	Severity Severity
	At       time.Time
}
