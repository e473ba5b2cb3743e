package core

import "context"

// DefaultQuotaBytes is the per-user storage ceiling, 4 GiB.
const DefaultQuotaBytes int64 = 4 << 30

// QuotaLedger answers how many bytes a user has consumed and whether
// adding more would exceed the cap. Consumption is recalculated from
// the record store's current file set on every call rather than tracked
// incrementally, so it cannot drift.
type QuotaLedger struct {
	store    QuotaStore
	capBytes int64
}

func NewQuotaLedger(store QuotaStore, capBytes int64) *QuotaLedger {
	if capBytes <= 0 {
		capBytes = DefaultQuotaBytes
	}
	return &QuotaLedger{store: store, capBytes: capBytes}
}

func (l *QuotaLedger) CapBytes() int64 {
	return l.capBytes
}

// UsedBytes reports the user's current consumption. A user with no
// registered files has used zero bytes; that is not an error.
func (l *QuotaLedger) UsedBytes(ctx context.Context, userID int64) (int64, error) {
	return l.store.SumFileSizes(ctx, userID)
}

func (l *QuotaLedger) WouldExceed(ctx context.Context, userID int64, additionalBytes int64) (bool, error) {
	used, err := l.UsedBytes(ctx, userID)
	if err != nil {
		return false, err
	}
	return used+additionalBytes > l.capBytes, nil
}
