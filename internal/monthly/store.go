// Package monthly implements the append-only monthly metrics store and the
// spreadsheet readers used by vendors that export their monthly figures.
package monthly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage/local"
)

// Store appends monthly records to one JSON array file per vendor and month.
// Each vendor workflow owns its own file, so appends are not locked.
type Store struct {
	files  *local.BlobStore
	logger *zap.Logger
}

var _ monitor.MetricsStore = (*Store)(nil)

// New creates a Store rooted at files.
func New(files *local.BlobStore, logger *zap.Logger) (*Store, error) {
	if files == nil {
		return nil, fmt.Errorf("monthly file store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{files: files, logger: logger.Named("monthly")}, nil
}

// FileName returns "<vendor>/dados das usinas <vendor> mês <N>.json".
func FileName(vendor string, period monitor.Period) string {
	return path.Join(vendor, fmt.Sprintf("dados das usinas %s mês %d.json", vendor, int(period.Month)))
}

// Load returns the records stored for vendor and period. A missing file is an
// empty collection.
func (s *Store) Load(ctx context.Context, vendor string, period monitor.Period) ([]json.RawMessage, error) {
	name := FileName(vendor, period)
	raw, err := s.files.GetObject(ctx, name)
	if errors.Is(err, fs.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

// Append adds rec to the vendor's collection for period and rewrites the file.
// Existing records are carried over verbatim; reruns append duplicates.
func (s *Store) Append(ctx context.Context, vendor string, period monitor.Period, rec monitor.MonthlyRecord) error {
	records, err := s.Load(ctx, vendor, period)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record for %s: %w", rec.Plant, err)
	}
	records = append(records, encoded)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}

	name := FileName(vendor, period)
	if _, err := s.files.PutObject(ctx, name, "application/json", &buf); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	s.logger.Info("monthly record appended",
		zap.String("vendor", vendor),
		zap.String("plant", rec.Plant),
		zap.Int("records", len(records)),
	)
	return nil
}
