package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seedhantkalra/caremind/internal/privacy"
)

// PostgresStore persists long-term memory in PostgreSQL. Profile attributes
// pass through the privacy codec at this boundary; nothing above the store
// sees ciphertext.
type PostgresStore struct {
	pool  *pgxpool.Pool
	codec *privacy.Codec
}

func NewPostgresStore(ctx context.Context, databaseURL string, codec *privacy.Codec) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, codec: codec}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			job_title TEXT NOT NULL DEFAULT '',
			workplace TEXT NOT NULL DEFAULT '',
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS insights (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_insights_user_created ON insights (user_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, userID string) (Record, error) {
	var rec Record
	var name, jobTitle, workplace string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, name, job_title, workplace, last_updated FROM users WHERE user_id=$1`,
		userID,
	).Scan(&rec.UserID, &name, &jobTitle, &workplace, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load user: %w", err)
	}
	rec.Profile.Name = s.decodeField(userID, "name", name)
	rec.Profile.JobTitle = s.decodeField(userID, "job_title", jobTitle)
	rec.Profile.Workplace = s.decodeField(userID, "workplace", workplace)

	rows, err := s.pool.Query(ctx,
		`SELECT content, created_at FROM insights WHERE user_id=$1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("load insights: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ins Insight
		if err := rows.Scan(&ins.Content, &ins.CreatedAt); err != nil {
			return Record{}, fmt.Errorf("scan insight: %w", err)
		}
		rec.Insights = append(rec.Insights, ins)
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("iterate insights: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Create(ctx context.Context, userID string, profile Profile) (Record, error) {
	rec := Record{UserID: userID}
	rec.ApplyProfile(profile)

	name, jobTitle, workplace, err := s.encodeProfile(rec.Profile)
	if err != nil {
		return Record{}, err
	}
	// ON CONFLICT DO NOTHING makes creation idempotent: an existing record
	// is returned untouched.
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, name, job_title, workplace, last_updated)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, name, jobTitle, workplace,
	); err != nil {
		return Record{}, fmt.Errorf("create user: %w", err)
	}
	return s.Load(ctx, userID)
}

func (s *PostgresStore) Save(ctx context.Context, record Record) error {
	name, jobTitle, workplace, err := s.encodeProfile(record.Profile)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	// A field masked as unreadable keeps its stored ciphertext. The mask
	// is a rendering of a failed decode, not a value; writing it back
	// would destroy the original the moment the key misconfiguration is
	// fixed.
	var storedName, storedJob, storedWorkplace string
	err = tx.QueryRow(ctx,
		`SELECT name, job_title, workplace FROM users WHERE user_id=$1`,
		record.UserID,
	).Scan(&storedName, &storedJob, &storedWorkplace)
	if err == nil {
		name = keepStored(record.Profile.Name, name, storedName)
		jobTitle = keepStored(record.Profile.JobTitle, jobTitle, storedJob)
		workplace = keepStored(record.Profile.Workplace, workplace, storedWorkplace)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read stored profile: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (user_id, name, job_title, workplace, last_updated)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET name=EXCLUDED.name, job_title=EXCLUDED.job_title,
		     workplace=EXCLUDED.workplace, last_updated=now()`,
		record.UserID, name, jobTitle, workplace,
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	// Full-record upsert: the saved insight sequence replaces whatever is
	// stored. Last writer wins across processes.
	if _, err := tx.Exec(ctx, `DELETE FROM insights WHERE user_id=$1`, record.UserID); err != nil {
		return fmt.Errorf("clear insights: %w", err)
	}
	for _, ins := range record.Insights {
		if _, err := tx.Exec(ctx,
			`INSERT INTO insights (id, user_id, content, created_at) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), record.UserID, ins.Content, ins.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert insight: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *PostgresStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM insights WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) encodeProfile(p Profile) (name, jobTitle, workplace string, err error) {
	if name, err = s.codec.Encode(p.Name); err != nil {
		return "", "", "", fmt.Errorf("encode name: %w", err)
	}
	if jobTitle, err = s.codec.Encode(p.JobTitle); err != nil {
		return "", "", "", fmt.Errorf("encode job_title: %w", err)
	}
	if workplace, err = s.codec.Encode(p.Workplace); err != nil {
		return "", "", "", fmt.Errorf("encode workplace: %w", err)
	}
	return name, jobTitle, workplace, nil
}

// keepStored picks the column value to persist: the stored one when the
// in-memory value is the unreadable mask, otherwise the freshly encoded one.
func keepStored(plain, encoded, stored string) string {
	if plain == privacy.Unreadable {
		return stored
	}
	return encoded
}

// decodeField maps an unreadable stored field to the sentinel instead of
// failing the request; a corrupted attribute must not brick the account.
func (s *PostgresStore) decodeField(userID, field, stored string) string {
	plain, err := s.codec.Decode(stored)
	if err != nil {
		log.Printf("[memory] user %s: %s undecodable, masking: %v", userID, field, err)
		return privacy.Unreadable
	}
	return plain
}
