package catalog

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// BankLister is the storage dependency of the loader: anything that can read
// the full question bank.
type BankLister interface {
	ListBankItems(ctx context.Context) ([]model.BankItem, error)
}

// Loader builds snapshots on demand, collapsing concurrent requests for the
// same tuple into one database read. Nothing is cached beyond the in-flight
// call, so every operation still observes the bank as of its own start.
type Loader struct {
	bank  BankLister
	group singleflight.Group
}

// NewLoader creates a Loader reading from the given bank.
func NewLoader(bank BankLister) *Loader {
	return &Loader{bank: bank}
}

// Snapshot builds a fresh snapshot for the tuple, sharing the underlying bank
// read with any concurrent call for the same tuple.
func (l *Loader) Snapshot(ctx context.Context, tuple model.TargetingTuple) (*Snapshot, error) {
	if err := tuple.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	v, err, _ := l.group.Do(tuple.Key(), func() (any, error) {
		// Detached context: singleflight reuses the first caller's context,
		// and a cancelled first caller must not fail the waiters sharing
		// this load.
		loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		items, err := l.bank.ListBankItems(loadCtx)
		if err != nil {
			return nil, err
		}
		return Build(tuple, items)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}
