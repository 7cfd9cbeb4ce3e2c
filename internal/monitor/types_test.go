package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviousPeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		now  time.Time
		want Period
	}{
		{"january rolls back", time.Date(2026, time.January, 1, 6, 0, 0, 0, time.UTC), Period{Year: 2025, Month: time.December}},
		{"mid year", time.Date(2026, time.July, 1, 6, 0, 0, 0, time.UTC), Period{Year: 2026, Month: time.June}},
		{"end of month", time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC), Period{Year: 2026, Month: time.February}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PreviousPeriod(tt.now))
		})
	}
}

func TestMonthlyRecordMarshalPreservesOrder(t *testing.T) {
	t.Parallel()

	rec := MonthlyRecord{Plant: "Usina Norte", Interference: 2}
	rec.Set("Geração total", "12.5 MWh")
	rec.Set("Receita", 1234.5)
	rec.Set("Geração total", "13 MWh")

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"Usina":"Usina Norte","Interferências":2,"Geração total":"13 MWh","Receita":1234.5}`, string(raw))

	v, ok := rec.Get("Receita")
	require.True(t, ok)
	assert.Equal(t, 1234.5, v)
}

func TestMonthlyRecordIgnoresReservedFieldKeys(t *testing.T) {
	t.Parallel()

	rec := MonthlyRecord{Plant: "A", Fields: []Field{{Key: RecordKeyPlant, Value: "B"}, {Key: "x", Value: 1}}}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"Usina":"A","Interferências":0,"x":1}`, string(raw))
}

func TestVendorAccount(t *testing.T) {
	t.Parallel()

	v := Vendor{Accounts: []Account{{Label: "a", Username: "u1"}, {Label: "b", Username: "u2"}}}
	acct, ok := v.Account("b")
	require.True(t, ok)
	assert.Equal(t, "u2", acct.Username)

	acct, ok = v.Account("")
	require.True(t, ok)
	assert.Equal(t, "u1", acct.Username)

	_, ok = v.Account("missing")
	assert.False(t, ok)
}

func TestFatalErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("plant loop: %w", Fatal("login", ErrChallengeExhausted))
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrChallengeExhausted)
	assert.Equal(t, "plant loop: login: challenge attempts exhausted", err.Error())
	assert.False(t, IsFatal(errors.New("boom")))
}

func TestNotificationKindValid(t *testing.T) {
	t.Parallel()

	assert.True(t, KindOfflineInverter.Valid())
	assert.True(t, KindFaultHistory.Valid())
	assert.True(t, KindInternalError.Valid())
	assert.False(t, NotificationKind("sms").Valid())
}
