package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAudit persists the login audit trail in the session_audit table:
//
//	session_audit(browser_id text primary key, user_id text, tenant_id text,
//	              role text, ip text, ua text, login_at timestamptz,
//	              expires_at timestamptz)
type PGAudit struct {
	pool *pgxpool.Pool
}

// NewPGAudit constructs a PostgreSQL audit recorder.
func NewPGAudit(pool *pgxpool.Pool) *PGAudit {
	return &PGAudit{pool: pool}
}

const uniqueViolation = "23505"

// RecordLogin inserts an audit row for a successful login. A repeated
// login on the same browser session replaces the previous row.
func (a *PGAudit) RecordLogin(ctx context.Context, entry AuditEntry) error {
	const insert = `
		INSERT INTO session_audit (browser_id, user_id, tenant_id, role, ip, ua, login_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := a.pool.Exec(ctx, insert,
		entry.BrowserID,
		entry.UserID,
		textOrNull(entry.TenantID),
		entry.Role.String(),
		textOrNull(entry.IP),
		textOrNull(entry.UserAgent),
		pgtype.Timestamptz{Time: entry.LoginAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: entry.ExpiresAt.UTC(), Valid: !entry.ExpiresAt.IsZero()},
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		const update = `
			UPDATE session_audit
			SET user_id = $2, tenant_id = $3, role = $4, ip = $5, ua = $6, login_at = $7, expires_at = $8
			WHERE browser_id = $1`
		_, err = a.pool.Exec(ctx, update,
			entry.BrowserID,
			entry.UserID,
			textOrNull(entry.TenantID),
			entry.Role.String(),
			textOrNull(entry.IP),
			textOrNull(entry.UserAgent),
			pgtype.Timestamptz{Time: entry.LoginAt.UTC(), Valid: true},
			pgtype.Timestamptz{Time: entry.ExpiresAt.UTC(), Valid: !entry.ExpiresAt.IsZero()},
		)
	}
	return err
}

// RecordLogout removes the audit row for a browser session.
func (a *PGAudit) RecordLogout(ctx context.Context, browserID string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM session_audit WHERE browser_id = $1`, browserID)
	return err
}

// DeleteExpired prunes audit rows whose tokens expired before the cutoff.
// Used by the background sweep.
func (a *PGAudit) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM session_audit WHERE expires_at < $1`,
		pgtype.Timestamptz{Time: before.UTC(), Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

var _ AuditRecorder = (*PGAudit)(nil)
