package db

import (
	"context"
	"database/sql"
	"time"
)

// GetImapCursor returns the single persisted IMAP cursor row.
func (q *Queries) GetImapCursor(ctx context.Context) (*ImapCursor, error) {
	row := q.db.QueryRowContext(ctx, `SELECT last_uid, uidvalidity, last_poll_at FROM imap_cursor WHERE id = 1`)
	c := &ImapCursor{}
	if err := row.Scan(&c.LastUID, &c.UIDValidity, &c.LastPollAt); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveImapCursor persists (last_uid, uidvalidity, last_poll_at).
func (q *Queries) SaveImapCursor(ctx context.Context, lastUID int64, uidvalidity sql.NullInt64, lastPollAt time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE imap_cursor SET last_uid = $1, uidvalidity = $2, last_poll_at = $3 WHERE id = 1
	`, lastUID, uidvalidity, lastPollAt)
	return err
}

// ResetImapCursor resets (last_uid, uidvalidity) to (0, null) on a uidvalidity change.
func (q *Queries) ResetImapCursor(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `UPDATE imap_cursor SET last_uid = 0, uidvalidity = NULL WHERE id = 1`)
	return err
}
