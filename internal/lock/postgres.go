package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// PostgresLocker keeps leases as sentinel rows in analysis_run_locks. An
// expired row is taken over by the next acquirer, so a crashed holder only
// blocks runs until its TTL lapses.
type PostgresLocker struct {
	db *sqlx.DB
}

func NewPostgresLocker(db *sqlx.DB) *PostgresLocker {
	return &PostgresLocker{db: db}
}

func (l *PostgresLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()

	query := `
		INSERT INTO analysis_run_locks (lock_key, holder, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3))
		ON CONFLICT (lock_key) DO UPDATE SET
			holder = EXCLUDED.holder,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE analysis_run_locks.expires_at < NOW()
		RETURNING holder
	`

	var holder string
	err := l.db.QueryRowxContext(ctx, query, key, token, ttl.Seconds()).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contention(key)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	log.Debug().Str("lock_key", key).Str("holder", token).Msg("run lock acquired")
	return &postgresLease{db: l.db, key: key, token: token}, nil
}

type postgresLease struct {
	db    *sqlx.DB
	key   string
	token string
}

func (p *postgresLease) Key() string { return p.key }

func (p *postgresLease) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE analysis_run_locks
		SET expires_at = NOW() + make_interval(secs => $3)
		WHERE lock_key = $1 AND holder = $2
	`, p.key, p.token, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", p.key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", p.key, err)
	}
	if n == 0 {
		return lost(p.key)
	}
	return nil
}

func (p *postgresLease) Release(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM analysis_run_locks WHERE lock_key = $1 AND holder = $2`, p.key, p.token)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", p.key, err)
	}
	return nil
}
