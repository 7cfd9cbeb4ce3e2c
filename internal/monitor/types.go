package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Account is one credential set for a vendor dashboard.
type Account struct {
	Label    string
	Username string
	Password string
}

// Vendor identifies one monitored dashboard provider for the duration of a run.
type Vendor struct {
	Name     string
	URL      string
	Accounts []Account
	Plants   []string
	// IgnoreHTTPSErrors relaxes certificate checks for dashboards with broken TLS.
	IgnoreHTTPSErrors bool
}

// Account returns the credential labelled label, falling back to the first account
// when label is empty.
func (v Vendor) Account(label string) (Account, bool) {
	for _, acct := range v.Accounts {
		if label == "" || acct.Label == label {
			return acct, true
		}
	}
	return Account{}, false
}

// Plant is a named monitored unit of a vendor.
type Plant struct {
	Vendor string
	Name   string
}

func (p Plant) String() string {
	return p.Vendor + " - " + p.Name
}

// ArtifactKind names an evidence screenshot category.
type ArtifactKind string

// Evidence artifact kinds. The values are part of the on-disk file names.
const (
	ArtifactOverview  ArtifactKind = "visão geral"
	ArtifactInverters ArtifactKind = "inversores"
	ArtifactChart     ArtifactKind = "gráfico"
	ArtifactFault     ArtifactKind = "falha"
)

// Capture is a screenshot produced by a vendor adapter. Frame is non-zero for
// carousel captures, where each frame is stored as its own artifact.
type Capture struct {
	Kind  ArtifactKind
	Frame int
	Data  []byte
}

// Severity tags a fault-history finding.
type Severity string

// Fault severities used by vendors in their fault views.
const (
	SeverityPending     Severity = "pendente"
	SeverityWarning     Severity = "aviso"
	SeverityResolved    Severity = "resolvida"
	SeverityUnspecified Severity = "não especificado"
)

// InverterStatus is one row of an inverter panel read during analysis.
type InverterStatus struct {
	ID     string
	Status string
}

// FaultCheck is the outcome of inspecting a plant's fault-history view.
type FaultCheck struct {
	Found    bool
	Severity Severity
	Evidence []byte
}

// Period identifies the calendar month a monthly record belongs to.
type Period struct {
	Year  int
	Month time.Month
}

// PreviousPeriod returns the month before now. Runs on the first day of a month
// close out the prior month, so January rolls back to December.
func PreviousPeriod(now time.Time) Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	return Period{Year: prev.Year(), Month: prev.Month()}
}

// Field is one key/value pair of a monthly record.
type Field struct {
	Key   string
	Value any
}

// Record keys shared by every vendor.
const (
	RecordKeyPlant        = "Usina"
	RecordKeyInterference = "Interferências"
)

// MonthlyRecord is a flat, ordered key/value record describing one plant for one
// month. It always carries the plant name and interference count first.
type MonthlyRecord struct {
	Plant        string
	Interference int
	Fields       []Field
}

// Set appends or replaces the value stored under key.
func (r *MonthlyRecord) Set(key string, value any) {
	for i := range r.Fields {
		if r.Fields[i].Key == key {
			r.Fields[i].Value = value
			return
		}
	}
	r.Fields = append(r.Fields, Field{Key: key, Value: value})
}

// Get returns the value stored under key.
func (r MonthlyRecord) Get(key string) (any, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the record as a JSON object preserving field order.
func (r MonthlyRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(i int, key string, value any) error {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return fmt.Errorf("marshal key %q: %w", key, err)
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal value for %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}
	if err := write(0, RecordKeyPlant, r.Plant); err != nil {
		return nil, err
	}
	if err := write(1, RecordKeyInterference, r.Interference); err != nil {
		return nil, err
	}
	for i, f := range r.Fields {
		if f.Key == RecordKeyPlant || f.Key == RecordKeyInterference {
			continue
		}
		if err := write(i+2, f.Key, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
