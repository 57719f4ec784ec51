package commute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alfredhome/alfred/internal/transit"
)

// Schema creates the plan tables when they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS commute_users (
	user_key     TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS commute_legs (
	user_key       TEXT NOT NULL REFERENCES commute_users (user_key) ON DELETE CASCADE,
	at_home        BOOLEAN NOT NULL,
	ord            INTEGER NOT NULL,
	mode           TEXT NOT NULL,
	params         JSONB NOT NULL DEFAULT '{}'::jsonb,
	depends_on     INTEGER,
	buffer_minutes INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_key, at_home, ord)
);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL plan repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the plan tables.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create commute schema: %w", err)
	}
	return nil
}

// Plan returns the descriptors for user at the given location.
func (r *PostgresRepository) Plan(ctx context.Context, user string, atHome bool) (*Plan, error) {
	key := normalizeUser(user)

	var name string
	err := r.pool.QueryRow(ctx, `SELECT display_name FROM commute_users WHERE user_key = $1`, key).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, user)
		}
		return nil, err
	}

	query := `
		SELECT ord, mode, params, depends_on, buffer_minutes
		FROM commute_legs
		WHERE user_key = $1 AND at_home = $2
		ORDER BY ord
	`

	rows, err := r.pool.Query(ctx, query, key, atHome)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plan := &Plan{User: name, AtHome: atHome}
	for rows.Next() {
		var (
			d      Descriptor
			mode   string
			params []byte
		)
		if err := rows.Scan(&d.Order, &mode, &params, &d.DependsOn, &d.BufferMinutes); err != nil {
			return nil, err
		}
		d.Mode = transit.Mode(mode)
		if err := json.Unmarshal(params, &d.Params); err != nil {
			return nil, fmt.Errorf("decode params of %s leg %d: %w", name, d.Order, err)
		}
		plan.Descriptors = append(plan.Descriptors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return plan, nil
}

// Save replaces a user's plans in one transaction.
func (r *PostgresRepository) Save(ctx context.Context, user string, plans UserPlans) error {
	if err := ValidateUserPlans(map[string]UserPlans{user: plans}); err != nil {
		return err
	}
	key := normalizeUser(user)

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		upsert := `
			INSERT INTO commute_users (user_key, display_name, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_key) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = now()
		`
		if _, err := tx.Exec(ctx, upsert, key, user); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM commute_legs WHERE user_key = $1`, key); err != nil {
			return err
		}

		insert := `
			INSERT INTO commute_legs (user_key, at_home, ord, mode, params, depends_on, buffer_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		batch := &pgx.Batch{}
		for _, loc := range []bool{true, false} {
			for _, d := range plans.For(loc) {
				params, err := json.Marshal(d.Params)
				if err != nil {
					return err
				}
				batch.Queue(insert, key, loc, d.Order, string(d.Mode), params, d.DependsOn, d.BufferMinutes)
			}
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
