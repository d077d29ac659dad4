package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/intake-api/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and tests; production runs Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	email              TEXT NOT NULL COLLATE NOCASE UNIQUE,
	idea               TEXT NOT NULL,
	stage              TEXT NOT NULL DEFAULT '',
	timeline           TEXT NOT NULL DEFAULT '',
	budget             TEXT NOT NULL DEFAULT '',
	qualified          INTEGER NOT NULL DEFAULT 0,
	target_user        TEXT,
	core_action        TEXT,
	features           TEXT,
	design_inspiration TEXT,
	chat_responses     TEXT,
	spec               TEXT,
	ip_address         TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_ip ON leads(ip_address);

CREATE TABLE IF NOT EXISTS mvp_leads (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	email           TEXT NOT NULL COLLATE NOCASE UNIQUE,
	idea            TEXT NOT NULL,
	target_audience TEXT NOT NULL DEFAULT '',
	core_feature    TEXT NOT NULL DEFAULT '',
	mvp_type        TEXT NOT NULL DEFAULT '',
	timeline        TEXT NOT NULL DEFAULT '',
	brief_url       TEXT,
	ip_address      TEXT,
	summary         TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteLeadColumns = `id, name, email, idea, stage, timeline, budget, qualified,
	target_user, core_action, features, design_inspiration,
	chat_responses, spec, ip_address, created_at, updated_at`

func (s *SQLiteStore) CreateLead(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	lead.ID = uuid.New().String()
	lead.Email = model.NormalizeEmail(lead.Email)
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	var responsesJSON any
	if lead.ChatResponses != nil {
		b, err := json.Marshal(lead.ChatResponses)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal chat responses")
		}
		responsesJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, name, email, idea, stage, timeline, budget, qualified,
			target_user, core_action, features, design_inspiration,
			chat_responses, spec, ip_address, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Name, lead.Email, lead.Idea, lead.Stage, lead.Timeline, lead.Budget,
		lead.Qualified, lead.TargetUser, lead.CoreAction, lead.Features, lead.DesignInspiration,
		responsesJSON, lead.Spec, lead.IPAddress, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, eris.Wrap(ErrDuplicateEmail, lead.Email)
		}
		return nil, eris.Wrap(err, "sqlite: insert lead")
	}
	return &lead, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM leads WHERE id = ?`, sqliteLeadColumns), id)
	return scanSQLiteLead(row)
}

func (s *SQLiteStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM leads WHERE email = ? COLLATE NOCASE`, sqliteLeadColumns),
		model.NormalizeEmail(email))
	return scanSQLiteLead(row)
}

func (s *SQLiteStore) LeadEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE email = ? COLLATE NOCASE)`,
		model.NormalizeEmail(email)).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: lead email exists")
}

func (s *SQLiteStore) LeadIPExists(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE ip_address = ?)`, ip).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: lead ip exists")
}

func (s *SQLiteStore) UpdateLeadFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	set := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, col := range cols {
		set = append(set, fmt.Sprintf("%s = ?", col))
		args = append(args, fields[col])
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE leads SET %s WHERE id = ?", strings.Join(set, ", ")), args...)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return eris.Wrap(ErrDuplicateEmail, id)
		}
		return eris.Wrapf(err, "sqlite: update lead %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) SetLeadSpec(ctx context.Context, id string, spec string, responses *model.ChatResponses) error {
	var responsesJSON any
	if responses != nil {
		b, err := json.Marshal(responses)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal chat responses")
		}
		responsesJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET spec = ?, chat_responses = COALESCE(?, chat_responses), updated_at = ? WHERE id = ?`,
		spec, responsesJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set lead spec %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) MergeChatResponses(ctx context.Context, id string, responses model.ChatResponses) error {
	b, err := json.Marshal(responses)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal chat responses")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET chat_responses = ?, updated_at = ? WHERE id = ?`,
		string(b), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: merge chat responses %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) CountLeadsByEmailDomain(ctx context.Context, domain string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM leads WHERE lower(email) LIKE '%@' || lower(?)`,
		domain).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count leads by domain")
}

func (s *SQLiteStore) CreateMVPLead(ctx context.Context, lead model.MVPLead) (*model.MVPLead, error) {
	lead.ID = uuid.New().String()
	lead.Email = model.NormalizeEmail(lead.Email)
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mvp_leads (id, name, email, idea, target_audience, core_feature,
			mvp_type, timeline, brief_url, ip_address, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Name, lead.Email, lead.Idea, lead.TargetAudience, lead.CoreFeature,
		lead.MVPType, lead.Timeline, lead.BriefURL, lead.IPAddress, lead.Summary,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, eris.Wrap(ErrDuplicateEmail, lead.Email)
		}
		return nil, eris.Wrap(err, "sqlite: insert mvp lead")
	}
	return &lead, nil
}

func (s *SQLiteStore) MVPLeadEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM mvp_leads WHERE email = ? COLLATE NOCASE)`,
		model.NormalizeEmail(email)).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: mvp lead email exists")
}

func (s *SQLiteStore) SetMVPLeadBrief(ctx context.Context, id string, briefURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mvp_leads SET brief_url = ?, updated_at = ? WHERE id = ?`,
		briefURL, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set mvp lead brief %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) GetDailySpots(ctx context.Context, date string, total int) (*model.SpotCount, error) {
	return s.getSpots(ctx, "daily_spots", "date", date, total)
}

func (s *SQLiteStore) DecrementDailySpots(ctx context.Context, date string) (*model.SpotCount, error) {
	return s.decrementSpots(ctx, "daily_spots", "date", date)
}

func (s *SQLiteStore) GetMonthlySpots(ctx context.Context, month string, total int) (*model.SpotCount, error) {
	return s.getSpots(ctx, "monthly_spots", "month", month, total)
}

func (s *SQLiteStore) DecrementMonthlySpots(ctx context.Context, month string) (*model.SpotCount, error) {
	return s.decrementSpots(ctx, "monthly_spots", "month", month)
}

func (s *SQLiteStore) getSpots(ctx context.Context, table, keyCol, period string, total int) (*model.SpotCount, error) {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, spots_remaining, total_spots) VALUES (?, ?, ?)
			ON CONFLICT (%s) DO NOTHING`, table, keyCol, keyCol),
		period, total, total,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: init %s", table)
	}

	sc := &model.SpotCount{Period: period}
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT spots_remaining, total_spots FROM %s WHERE %s = ?`, table, keyCol),
		period).Scan(&sc.Remaining, &sc.Total)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", table)
	}
	return sc, nil
}

func (s *SQLiteStore) decrementSpots(ctx context.Context, table, keyCol, period string) (*model.SpotCount, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET spots_remaining = spots_remaining - 1
			WHERE %s = ? AND spots_remaining > 0`, table, keyCol),
		period,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: decrement %s", table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}

	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ?)`, table, keyCol),
			period).Scan(&exists); err != nil {
			return nil, eris.Wrapf(err, "sqlite: check %s", table)
		}
		if !exists {
			return nil, eris.Wrap(ErrNotFound, period)
		}
		return nil, eris.Wrap(ErrExhausted, period)
	}

	sc := &model.SpotCount{Period: period}
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT spots_remaining, total_spots FROM %s WHERE %s = ?`, table, keyCol),
		period).Scan(&sc.Remaining, &sc.Total)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", table)
	}
	return sc, nil
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var responsesJSON sql.NullString

	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Idea, &l.Stage, &l.Timeline, &l.Budget,
		&l.Qualified, &l.TargetUser, &l.CoreAction, &l.Features, &l.DesignInspiration,
		&responsesJSON, &l.Spec, &l.IPAddress, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "lead")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}

	if responsesJSON.Valid && responsesJSON.String != "" {
		l.ChatResponses = &model.ChatResponses{}
		if err := json.Unmarshal([]byte(responsesJSON.String), l.ChatResponses); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal chat responses")
		}
	}
	return &l, nil
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
