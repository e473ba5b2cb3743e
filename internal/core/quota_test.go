package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuotaStore struct {
	used map[int64]int64
	err  error
}

func (s *fakeQuotaStore) SumFileSizes(ctx context.Context, userID int64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.used[userID], nil
}

func TestQuotaWouldExceed(t *testing.T) {
	tests := map[string]struct {
		used       int64
		additional int64
		exceeds    bool
	}{
		"over the cap":       {used: 80, additional: 25, exceeds: true},
		"exactly at the cap": {used: 80, additional: 20, exceeds: false},
		"well under":         {used: 10, additional: 5, exceeds: false},
		"one byte over":      {used: 100, additional: 1, exceeds: true},
		"nothing used":       {used: 0, additional: 100, exceeds: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ledger := NewQuotaLedger(&fakeQuotaStore{used: map[int64]int64{7: tc.used}}, 100)

			exceeded, err := ledger.WouldExceed(context.Background(), 7, tc.additional)
			require.NoError(t, err)
			assert.Equal(t, tc.exceeds, exceeded)
		})
	}
}

func TestQuotaUsedBytesNoRecordIsZero(t *testing.T) {
	ledger := NewQuotaLedger(&fakeQuotaStore{used: map[int64]int64{}}, 100)

	used, err := ledger.UsedBytes(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestQuotaStoreErrorPropagates(t *testing.T) {
	wantErr := errors.New("backend down")
	ledger := NewQuotaLedger(&fakeQuotaStore{err: wantErr}, 100)

	_, err := ledger.UsedBytes(context.Background(), 1)
	assert.ErrorIs(t, err, wantErr)

	_, err = ledger.WouldExceed(context.Background(), 1, 10)
	assert.ErrorIs(t, err, wantErr)
}

func TestQuotaDefaultCap(t *testing.T) {
	ledger := NewQuotaLedger(&fakeQuotaStore{}, 0)
	assert.Equal(t, DefaultQuotaBytes, ledger.CapBytes())
}
