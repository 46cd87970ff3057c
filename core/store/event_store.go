package store

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/usezoracle/usezoracle-tg-server/core/model"
)

// EventStore owns the copy-trade event rows. The unique
// (config_id, original_tx_hash) constraint is the pipeline's only
// dedup mechanism: webhook senders deliver at least once, and the
// conflict path here is the expected outcome of a redelivery.
type EventStore struct {
	db *bun.DB
}

func NewEventStore(db *bun.DB) *EventStore {
	return &EventStore{db: db}
}

// Upsert inserts the event if no row with the same (config, tx hash)
// key exists. inserted=false means the row was already there; callers
// treat that as success, not as an error.
func (s *EventStore) Upsert(ctx context.Context, ev *model.CopyTradeEvent) (bool, error) {
	res, err := s.db.NewInsert().Model(ev).
		On("CONFLICT (config_id, original_tx_hash) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// ListByConfig returns the audit trail for one config, newest first.
func (s *EventStore) ListByConfig(ctx context.Context, configID int64) ([]model.CopyTradeEvent, error) {
	var res []model.CopyTradeEvent
	err := s.db.NewSelect().Model(&res).
		Where("config_id = ?", configID).
		Order("timestamp DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}
