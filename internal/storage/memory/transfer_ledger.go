package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

// TransferLedger is an append-only in-memory transfer ledger.
type TransferLedger struct {
	mu        sync.RWMutex
	transfers []domain.Transfer
}

// NewTransferLedger creates a new TransferLedger.
func NewTransferLedger() *TransferLedger {
	return &TransferLedger{}
}

var (
	_ storage.TransferLedger = (*TransferLedger)(nil)
	_ storage.TransferWriter = (*TransferLedger)(nil)
)

// InsertTransfers appends transfers, lowercasing addresses.
func (l *TransferLedger) InsertTransfers(_ context.Context, transfers []domain.Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range transfers {
		t.From = strings.ToLower(t.From)
		t.To = strings.ToLower(t.To)
		t.TokenAddress = strings.ToLower(t.TokenAddress)
		l.transfers = append(l.transfers, t)
	}
	return nil
}

// FindTransfers returns transfers touching any filter address, ordered by
// (timestamp, tx_hash, log_index).
func (l *TransferLedger) FindTransfers(_ context.Context, filter domain.TransferFilter) ([]domain.Transfer, error) {
	addrs := make(map[string]struct{}, len(filter.Addresses))
	for _, a := range filter.Addresses {
		addrs[strings.ToLower(a)] = struct{}{}
	}

	l.mu.RLock()
	out := make([]domain.Transfer, 0)
	for _, t := range l.transfers {
		_, from := addrs[t.From]
		_, to := addrs[t.To]
		if !from && !to {
			continue
		}
		if filter.Since != nil && t.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !t.Timestamp.Before(*filter.Until) {
			continue
		}
		if filter.BridgeOnly && !t.IsBridge() {
			continue
		}
		out = append(out, t)
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if filter.Descending {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		return a.LogIndex < b.LogIndex
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
