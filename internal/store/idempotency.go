package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IdempotencyRepo remembers client-supplied ingestion keys so a retried
// append returns the original record instead of writing a duplicate.
type IdempotencyRepo interface {
	// LookupIdempotencyKey returns the record ID stored for key, or "" if the
	// key has not been seen.
	LookupIdempotencyKey(key string) (string, error)

	// SaveIdempotencyKey binds key to recordID. Saving an existing key is a
	// no-op and keeps the first binding.
	SaveIdempotencyKey(key, userID, recordID string) error
}

func (b *sqlBase) LookupIdempotencyKey(key string) (string, error) {
	var recordID string
	err := b.db.QueryRow(b.rebind(`SELECT record_id FROM idempotency_keys WHERE idem_key = ?`), key).Scan(&recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return recordID, nil
}

func (b *sqlBase) SaveIdempotencyKey(key, userID, recordID string) error {
	_, err := b.db.Exec(b.rebind(
		`INSERT INTO idempotency_keys (idem_key, user_id, record_id, received_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (idem_key) DO NOTHING`),
		key, userID, recordID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save idempotency key failed: %w", err)
	}
	return nil
}
