package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS searches (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL,
	industry        TEXT NOT NULL DEFAULT '',
	radius_meters   INTEGER NOT NULL,
	requested_count INTEGER NOT NULL,
	status          TEXT NOT NULL DEFAULT 'processing',
	progress        INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	result_count    INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_searches_user_id ON searches(user_id);
CREATE INDEX IF NOT EXISTS idx_searches_status ON searches(status);

CREATE TABLE IF NOT EXISTS leads (
	id                  TEXT PRIMARY KEY,
	search_id           TEXT NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
	place_id            TEXT NOT NULL,
	name                TEXT NOT NULL,
	address             TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	domain              TEXT NOT NULL DEFAULT '',
	email               TEXT,
	email_confidence    INTEGER,
	socials             TEXT,
	automation_detected INTEGER NOT NULL DEFAULT 0,
	automation_tools    TEXT,
	probability_score   INTEGER CHECK (probability_score BETWEEN 0 AND 100),
	google_rating       REAL,
	industry            TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (search_id, place_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_search_id ON leads(search_id);

CREATE TABLE IF NOT EXISTS detection_cache (
	host       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detection_cache_expires_at ON detection_cache(expires_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Searches

func (s *SQLiteStore) CreateSearch(ctx context.Context, sr *model.SearchRequest) error {
	prepareSearch(sr, newID, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO searches (`+searchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.ID, sr.UserID, sr.Location, sr.Industry, sr.RadiusMeters, sr.RequestedCount,
		string(sr.Status), sr.Progress, sr.ResultCount, sr.Error, sr.CreatedAt, sr.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert search")
}

func (s *SQLiteStore) GetSearch(ctx context.Context, id string) (*model.SearchRequest, error) {
	sr, err := scanSQLiteSearch(s.db.QueryRowContext(ctx,
		`SELECT `+searchColumns+` FROM searches WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: get search %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get search %s", id)
	}
	return sr, nil
}

func (s *SQLiteStore) ListSearches(ctx context.Context, filter SearchFilter) ([]model.SearchRequest, error) {
	query := `SELECT ` + searchColumns + ` FROM searches WHERE 1=1`
	args := []any{}

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list searches")
	}
	defer rows.Close() //nolint:errcheck

	var searches []model.SearchRequest
	for rows.Next() {
		sr, err := scanSQLiteSearch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search")
		}
		searches = append(searches, *sr)
	}
	return searches, eris.Wrap(rows.Err(), "sqlite: list searches iterate")
}

// UpdateSearchProgress raises the progress of a processing search. Lower
// values and terminal searches are ignored.
func (s *SQLiteStore) UpdateSearchProgress(ctx context.Context, id string, progress int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE searches SET progress = MAX(progress, ?), updated_at = ? WHERE id = ? AND status = 'processing'`,
		clampProgress(progress), s.now(), id,
	)
	return eris.Wrapf(err, "sqlite: update search progress %s", id)
}

func (s *SQLiteStore) SetResultCount(ctx context.Context, id string, count int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE searches SET result_count = ?, updated_at = ? WHERE id = ? AND status = 'processing'`,
		count, s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set result count %s", id)
	}
	return checkRowsAffected(res, "search", id)
}

func (s *SQLiteStore) CompleteSearch(ctx context.Context, id string, resultCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE searches SET status = ?, progress = 100, result_count = ?, updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		string(model.SearchStatusCompleted), resultCount, s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete search %s", id)
	}
	return checkRowsAffected(res, "search", id)
}

func (s *SQLiteStore) FailSearch(ctx context.Context, id string, errMsg string, resetProgress bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE searches SET status = ?, error = ?,
		 progress = CASE WHEN ? THEN 0 ELSE progress END, updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		string(model.SearchStatusFailed), errMsg, resetProgress, s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail search %s", id)
	}
	return checkRowsAffected(res, "search", id)
}

// Leads

// InsertLeads inserts new leads in one transaction, skipping rows whose
// (search_id, place_id) already exists.
func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (id, search_id, place_id, name, address, phone, website, domain, google_rating, industry, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (search_id, place_id) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert leads")
	}
	defer stmt.Close() //nolint:errcheck

	now := s.now()
	var inserted int64
	for i := range leads {
		l := &leads[i]
		if l.ID == "" {
			l.ID = newID()
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		res, err := stmt.ExecContext(ctx, l.ID, l.SearchID, l.PlaceID, l.Name, l.Address,
			l.Phone, l.Website, l.Domain, l.GoogleRating, l.Industry, l.CreatedAt)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert lead %s", l.PlaceID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert leads")
	}
	return inserted, nil
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, id string, patch model.LeadPatch) error {
	if patch.Empty() {
		return nil
	}
	socials, tools, err := patchJSON(patch)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal lead patch")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET
		 email = COALESCE(?, email),
		 email_confidence = COALESCE(?, email_confidence),
		 socials = COALESCE(?, socials),
		 automation_detected = COALESCE(?, automation_detected),
		 automation_tools = COALESCE(?, automation_tools),
		 probability_score = COALESCE(?, probability_score)
		 WHERE id = ?`,
		patch.Email, patch.EmailConfidence, nullText(socials), patch.AutomationDetected,
		nullText(tools), patch.ProbabilityScore, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanSQLiteLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: get lead %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return l, nil
}

// GetLeads returns the leads with the given IDs. Unknown IDs are skipped.
func (s *SQLiteStore) GetLeads(ctx context.Context, ids []string) ([]model.Lead, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryLeads(ctx, "get leads",
		`SELECT `+leadColumns+` FROM leads WHERE id IN (`+placeholders+`) ORDER BY created_at, place_id`,
		args...)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, searchID string) ([]model.Lead, error) {
	return s.queryLeads(ctx, "list leads",
		`SELECT `+leadColumns+` FROM leads WHERE search_id = ? ORDER BY created_at, place_id`, searchID)
}

func (s *SQLiteStore) queryLeads(ctx context.Context, op, query string, args ...any) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s scan", op)
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

// Detection cache

func (s *SQLiteStore) GetCachedDetection(ctx context.Context, host string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM detection_cache WHERE host = ? AND expires_at > ?`,
		host, s.now().Unix(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get cached detection")
	}
	return []byte(data), nil
}

func (s *SQLiteStore) SetCachedDetection(ctx context.Context, host string, data []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO detection_cache (host, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (host) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		host, string(data), now.Unix(), now.Add(ttl).Unix(),
	)
	return eris.Wrap(err, "sqlite: set cached detection")
}

func (s *SQLiteStore) DeleteExpiredDetections(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM detection_cache WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired detections")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	return checkTag(n, entity, id)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteSearch(row scannable) (*model.SearchRequest, error) {
	var sr model.SearchRequest
	var status string
	err := row.Scan(&sr.ID, &sr.UserID, &sr.Location, &sr.Industry, &sr.RadiusMeters,
		&sr.RequestedCount, &status, &sr.Progress, &sr.ResultCount, &sr.Error,
		&sr.CreatedAt, &sr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sr.Status = model.SearchStatus(status)
	return &sr, nil
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var (
		l          model.Lead
		email      sql.NullString
		confidence sql.NullInt64
		socials    sql.NullString
		tools      sql.NullString
		score      sql.NullInt64
		rating     sql.NullFloat64
	)
	err := row.Scan(&l.ID, &l.SearchID, &l.PlaceID, &l.Name, &l.Address, &l.Phone,
		&l.Website, &l.Domain, &email, &confidence, &socials,
		&l.AutomationDetected, &tools, &score, &rating, &l.Industry, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		l.Email = &email.String
	}
	if confidence.Valid {
		c := int(confidence.Int64)
		l.EmailConfidence = &c
	}
	if score.Valid {
		sc := int(score.Int64)
		l.ProbabilityScore = &sc
	}
	if rating.Valid {
		l.GoogleRating = &rating.Float64
	}
	if err := decodeLeadJSON(&l, []byte(socials.String), []byte(tools.String)); err != nil {
		return nil, err
	}
	return &l, nil
}

func nullText(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
