package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-api/internal/db"
	"github.com/sells-group/intake-api/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	email              TEXT NOT NULL,
	idea               TEXT NOT NULL,
	stage              TEXT NOT NULL DEFAULT '',
	timeline           TEXT NOT NULL DEFAULT '',
	budget             TEXT NOT NULL DEFAULT '',
	qualified          BOOLEAN NOT NULL DEFAULT false,
	target_user        TEXT,
	core_action        TEXT,
	features           TEXT,
	design_inspiration TEXT,
	chat_responses     JSONB,
	spec               TEXT,
	ip_address         TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_email ON leads(lower(email));
CREATE INDEX IF NOT EXISTS idx_leads_ip ON leads(ip_address);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);

CREATE TABLE IF NOT EXISTS mvp_leads (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	email           TEXT NOT NULL,
	idea            TEXT NOT NULL,
	target_audience TEXT NOT NULL DEFAULT '',
	core_feature    TEXT NOT NULL DEFAULT '',
	mvp_type        TEXT NOT NULL DEFAULT '',
	timeline        TEXT NOT NULL DEFAULT '',
	brief_url       TEXT,
	ip_address      TEXT,
	summary         TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_mvp_leads_email ON mvp_leads(lower(email));

CREATE TABLE IF NOT EXISTS daily_spots (
	date            TEXT PRIMARY KEY,
	spots_remaining INTEGER NOT NULL,
	total_spots     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS monthly_spots (
	month           TEXT PRIMARY KEY,
	spots_remaining INTEGER NOT NULL,
	total_spots     INTEGER NOT NULL
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const leadColumns = `id, name, email, idea, stage, timeline, budget, qualified,
	target_user, core_action, features, design_inspiration,
	chat_responses, spec, ip_address, created_at, updated_at`

func (s *PostgresStore) CreateLead(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	lead.ID = uuid.New().String()
	lead.Email = model.NormalizeEmail(lead.Email)
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	var responsesJSON any
	if lead.ChatResponses != nil {
		b, err := json.Marshal(lead.ChatResponses)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal chat responses")
		}
		responsesJSON = string(b)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, name, email, idea, stage, timeline, budget, qualified,
			target_user, core_action, features, design_inspiration,
			chat_responses, spec, ip_address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		lead.ID, lead.Name, lead.Email, lead.Idea, lead.Stage, lead.Timeline, lead.Budget,
		lead.Qualified, lead.TargetUser, lead.CoreAction, lead.Features, lead.DesignInspiration,
		responsesJSON, lead.Spec, lead.IPAddress, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, eris.Wrap(ErrDuplicateEmail, lead.Email)
		}
		return nil, eris.Wrap(err, "postgres: insert lead")
	}
	return &lead, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM leads WHERE id = $1`, leadColumns), id)
	return scanLead(row)
}

func (s *PostgresStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM leads WHERE lower(email) = lower($1)`, leadColumns),
		model.NormalizeEmail(email))
	return scanLead(row)
}

func (s *PostgresStore) LeadEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE lower(email) = lower($1))`,
		model.NormalizeEmail(email)).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: lead email exists")
}

func (s *PostgresStore) LeadIPExists(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE ip_address = $1)`, ip).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: lead ip exists")
}

func (s *PostgresStore) UpdateLeadFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	// Deterministic column order keeps the generated SQL stable for
	// logging and tests.
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	set := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for i, col := range cols {
		set = append(set, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), i+1))
		args = append(args, fields[col])
	}
	set = append(set, fmt.Sprintf("updated_at = $%d", len(cols)+1))
	args = append(args, time.Now().UTC())
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(set, ", "), len(cols)+2)
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		if isPgUniqueViolation(err) {
			return eris.Wrap(ErrDuplicateEmail, id)
		}
		return eris.Wrapf(err, "postgres: update lead %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) SetLeadSpec(ctx context.Context, id string, spec string, responses *model.ChatResponses) error {
	var responsesJSON any
	if responses != nil {
		b, err := json.Marshal(responses)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal chat responses")
		}
		responsesJSON = string(b)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET spec = $1, chat_responses = COALESCE($2, chat_responses), updated_at = $3 WHERE id = $4`,
		spec, responsesJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set lead spec %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) MergeChatResponses(ctx context.Context, id string, responses model.ChatResponses) error {
	b, err := json.Marshal(responses)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal chat responses")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET chat_responses = $1, updated_at = $2 WHERE id = $3`,
		string(b), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: merge chat responses %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) CountLeadsByEmailDomain(ctx context.Context, domain string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM leads WHERE lower(email) LIKE '%@' || lower($1)`,
		domain).Scan(&n)
	return n, eris.Wrap(err, "postgres: count leads by domain")
}

func (s *PostgresStore) CreateMVPLead(ctx context.Context, lead model.MVPLead) (*model.MVPLead, error) {
	lead.ID = uuid.New().String()
	lead.Email = model.NormalizeEmail(lead.Email)
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO mvp_leads (id, name, email, idea, target_audience, core_feature,
			mvp_type, timeline, brief_url, ip_address, summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		lead.ID, lead.Name, lead.Email, lead.Idea, lead.TargetAudience, lead.CoreFeature,
		lead.MVPType, lead.Timeline, lead.BriefURL, lead.IPAddress, lead.Summary,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, eris.Wrap(ErrDuplicateEmail, lead.Email)
		}
		return nil, eris.Wrap(err, "postgres: insert mvp lead")
	}
	return &lead, nil
}

func (s *PostgresStore) MVPLeadEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM mvp_leads WHERE lower(email) = lower($1))`,
		model.NormalizeEmail(email)).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: mvp lead email exists")
}

func (s *PostgresStore) SetMVPLeadBrief(ctx context.Context, id string, briefURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mvp_leads SET brief_url = $1, updated_at = $2 WHERE id = $3`,
		briefURL, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set mvp lead brief %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) GetDailySpots(ctx context.Context, date string, total int) (*model.SpotCount, error) {
	return s.getSpots(ctx, "daily_spots", "date", date, total)
}

func (s *PostgresStore) DecrementDailySpots(ctx context.Context, date string) (*model.SpotCount, error) {
	return s.decrementSpots(ctx, "daily_spots", "date", date)
}

func (s *PostgresStore) GetMonthlySpots(ctx context.Context, month string, total int) (*model.SpotCount, error) {
	return s.getSpots(ctx, "monthly_spots", "month", month, total)
}

func (s *PostgresStore) DecrementMonthlySpots(ctx context.Context, month string) (*model.SpotCount, error) {
	return s.decrementSpots(ctx, "monthly_spots", "month", month)
}

func (s *PostgresStore) getSpots(ctx context.Context, table, keyCol, period string, total int) (*model.SpotCount, error) {
	// Lazy init: first reader of a new period seeds the row. ON CONFLICT
	// DO NOTHING makes concurrent first reads race-safe.
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, spots_remaining, total_spots) VALUES ($1, $2, $2)
			ON CONFLICT (%s) DO NOTHING`, table, keyCol, keyCol),
		period, total,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: init %s", table)
	}

	sc := &model.SpotCount{Period: period}
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT spots_remaining, total_spots FROM %s WHERE %s = $1`, table, keyCol),
		period).Scan(&sc.Remaining, &sc.Total)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s", table)
	}
	return sc, nil
}

func (s *PostgresStore) decrementSpots(ctx context.Context, table, keyCol, period string) (*model.SpotCount, error) {
	// Single conditional update: cannot go negative under concurrency.
	sc := &model.SpotCount{Period: period}
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET spots_remaining = spots_remaining - 1
			WHERE %s = $1 AND spots_remaining > 0
			RETURNING spots_remaining, total_spots`, table, keyCol),
		period).Scan(&sc.Remaining, &sc.Total)
	if err == nil {
		return sc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: decrement %s", table)
	}

	// Distinguish an exhausted period from a missing one.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)`, table, keyCol),
		period).Scan(&exists); err != nil {
		return nil, eris.Wrapf(err, "postgres: check %s", table)
	}
	if !exists {
		return nil, eris.Wrap(ErrNotFound, period)
	}
	return nil, eris.Wrap(ErrExhausted, period)
}

// helpers

func scanLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var responsesJSON []byte

	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Idea, &l.Stage, &l.Timeline, &l.Budget,
		&l.Qualified, &l.TargetUser, &l.CoreAction, &l.Features, &l.DesignInspiration,
		&responsesJSON, &l.Spec, &l.IPAddress, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "lead")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan lead")
	}

	if len(responsesJSON) > 0 {
		l.ChatResponses = &model.ChatResponses{}
		if err := json.Unmarshal(responsesJSON, l.ChatResponses); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal chat responses")
		}
	}
	return &l, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
