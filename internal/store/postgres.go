package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/db"
	"github.com/sells-group/leadscout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	searchColumns = `id, user_id, location, industry, radius_meters, requested_count, status, progress, result_count, error, created_at, updated_at`
	leadColumns   = `id, search_id, place_id, name, address, phone, website, domain, email, email_confidence, socials, automation_detected, automation_tools, probability_score, google_rating, industry, created_at`

	sqlGetSearch      = `SELECT ` + searchColumns + ` FROM searches WHERE id = $1`
	sqlUpdateProgress = `UPDATE searches SET progress = GREATEST(progress, $1), updated_at = $2 WHERE id = $3 AND status = 'processing'`
	sqlUpdateLead     = `UPDATE leads SET
		email = COALESCE($1, email),
		email_confidence = COALESCE($2, email_confidence),
		socials = COALESCE($3, socials),
		automation_detected = COALESCE($4, automation_detected),
		automation_tools = COALESCE($5, automation_tools),
		probability_score = COALESCE($6, probability_score)
		WHERE id = $7`
	sqlGetLead           = `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	sqlListLeads         = `SELECT ` + leadColumns + ` FROM leads WHERE search_id = $1 ORDER BY created_at, place_id`
	sqlGetCachedDetect   = `SELECT data FROM detection_cache WHERE host = $1 AND expires_at > now()`
	sqlSetCachedDetect   = `INSERT INTO detection_cache (host, data, cached_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (host) DO UPDATE SET data = $2, cached_at = $3, expires_at = $4`
	sqlDeleteExpiredHost = `DELETE FROM detection_cache WHERE expires_at <= now()`
)

// preparedStatements lists queries to prepare on each new connection. The
// enrichment fan-out issues these once per lead.
var preparedStatements = map[string]string{
	"get_search":              sqlGetSearch,
	"update_search_progress":  sqlUpdateProgress,
	"update_lead":             sqlUpdateLead,
	"get_lead":                sqlGetLead,
	"list_leads":              sqlListLeads,
	"get_cached_detection":    sqlGetCachedDetect,
	"set_cached_detection":    sqlSetCachedDetect,
	"delete_expired_detected": sqlDeleteExpiredHost,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS searches (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id         TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL,
	industry        TEXT NOT NULL DEFAULT '',
	radius_meters   INTEGER NOT NULL,
	requested_count INTEGER NOT NULL,
	status          TEXT NOT NULL DEFAULT 'processing',
	progress        INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	result_count    INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_searches_user_id ON searches(user_id);
CREATE INDEX IF NOT EXISTS idx_searches_status ON searches(status);

CREATE TABLE IF NOT EXISTS leads (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	search_id           TEXT NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
	place_id            TEXT NOT NULL,
	name                TEXT NOT NULL,
	address             TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	domain              TEXT NOT NULL DEFAULT '',
	email               TEXT,
	email_confidence    INTEGER,
	socials             JSONB,
	automation_detected BOOLEAN NOT NULL DEFAULT false,
	automation_tools    JSONB,
	probability_score   INTEGER CHECK (probability_score BETWEEN 0 AND 100),
	google_rating       DOUBLE PRECISION,
	industry            TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (search_id, place_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_search_id ON leads(search_id);
CREATE INDEX IF NOT EXISTS idx_leads_domain ON leads(domain);

CREATE TABLE IF NOT EXISTS detection_cache (
	host       TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detection_cache_expires_at ON detection_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Searches

func (s *PostgresStore) CreateSearch(ctx context.Context, sr *model.SearchRequest) error {
	prepareSearch(sr, newID, time.Now().UTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO searches (`+searchColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sr.ID, sr.UserID, sr.Location, sr.Industry, sr.RadiusMeters, sr.RequestedCount,
		string(sr.Status), sr.Progress, sr.ResultCount, sr.Error, sr.CreatedAt, sr.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert search")
}

func (s *PostgresStore) GetSearch(ctx context.Context, id string) (*model.SearchRequest, error) {
	sr, err := scanSearch(s.pool.QueryRow(ctx, sqlGetSearch, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get search %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get search %s", id)
	}
	return sr, nil
}

func (s *PostgresStore) ListSearches(ctx context.Context, filter SearchFilter) ([]model.SearchRequest, error) {
	query := `SELECT ` + searchColumns + ` FROM searches WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list searches")
	}
	defer rows.Close()

	var searches []model.SearchRequest
	for rows.Next() {
		sr, err := scanSearch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan search")
		}
		searches = append(searches, *sr)
	}
	return searches, eris.Wrap(rows.Err(), "postgres: list searches iterate")
}

// UpdateSearchProgress raises the progress of a processing search. Lower
// values and terminal searches are ignored.
func (s *PostgresStore) UpdateSearchProgress(ctx context.Context, id string, progress int) error {
	_, err := s.pool.Exec(ctx, sqlUpdateProgress, clampProgress(progress), time.Now().UTC(), id)
	return eris.Wrapf(err, "postgres: update search progress %s", id)
}

func (s *PostgresStore) SetResultCount(ctx context.Context, id string, count int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE searches SET result_count = $1, updated_at = $2 WHERE id = $3 AND status = 'processing'`,
		count, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set result count %s", id)
	}
	return checkTag(tag.RowsAffected(), "search", id)
}

func (s *PostgresStore) CompleteSearch(ctx context.Context, id string, resultCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE searches SET status = $1, progress = 100, result_count = $2, updated_at = $3
		 WHERE id = $4 AND status = 'processing'`,
		string(model.SearchStatusCompleted), resultCount, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete search %s", id)
	}
	return checkTag(tag.RowsAffected(), "search", id)
}

func (s *PostgresStore) FailSearch(ctx context.Context, id string, errMsg string, resetProgress bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE searches SET status = $1, error = $2,
		 progress = CASE WHEN $3 THEN 0 ELSE progress END, updated_at = $4
		 WHERE id = $5 AND status = 'processing'`,
		string(model.SearchStatusFailed), errMsg, resetProgress, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail search %s", id)
	}
	return checkTag(tag.RowsAffected(), "search", id)
}

// Leads

var leadUpsert = db.UpsertConfig{
	Table:        "leads",
	Columns:      []string{"id", "search_id", "place_id", "name", "address", "phone", "website", "domain", "google_rating", "industry", "created_at"},
	ConflictKeys: []string{"search_id", "place_id"},
	UpdateCols:   []string{},
}

// InsertLeads bulk-loads new leads. Rows whose (search_id, place_id)
// already exists are skipped, so re-inserting a run's leads is a no-op.
func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	rows := make([][]any, 0, len(leads))
	now := time.Now().UTC()
	for i := range leads {
		l := &leads[i]
		if l.ID == "" {
			l.ID = newID()
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		rows = append(rows, []any{
			l.ID, l.SearchID, l.PlaceID, l.Name, l.Address, l.Phone,
			l.Website, l.Domain, l.GoogleRating, l.Industry, l.CreatedAt,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, leadUpsert, rows)
	return n, eris.Wrap(err, "postgres: insert leads")
}

func (s *PostgresStore) UpdateLead(ctx context.Context, id string, patch model.LeadPatch) error {
	if patch.Empty() {
		return nil
	}
	socials, tools, err := patchJSON(patch)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal lead patch")
	}
	tag, err := s.pool.Exec(ctx, sqlUpdateLead,
		patch.Email, patch.EmailConfidence, socials, patch.AutomationDetected,
		tools, patch.ProbabilityScore, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %s", id)
	}
	return checkTag(tag.RowsAffected(), "lead", id)
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx, sqlGetLead, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get lead %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return l, nil
}

// GetLeads returns the leads with the given IDs. Unknown IDs are skipped.
func (s *PostgresStore) GetLeads(ctx context.Context, ids []string) ([]model.Lead, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryLeads(ctx, "get leads",
		`SELECT `+leadColumns+` FROM leads WHERE id = ANY($1) ORDER BY created_at, place_id`, ids)
}

func (s *PostgresStore) ListLeads(ctx context.Context, searchID string) ([]model.Lead, error) {
	return s.queryLeads(ctx, "list leads", sqlListLeads, searchID)
}

func (s *PostgresStore) queryLeads(ctx context.Context, op, query string, args ...any) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: %s scan", op)
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

// Detection cache

func (s *PostgresStore) GetCachedDetection(ctx context.Context, host string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, sqlGetCachedDetect, host).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached detection")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedDetection(ctx context.Context, host string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, sqlSetCachedDetect, host, data, now, now.Add(ttl))
	return eris.Wrap(err, "postgres: set cached detection")
}

func (s *PostgresStore) DeleteExpiredDetections(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, sqlDeleteExpiredHost)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired detections")
	}
	return int(tag.RowsAffected()), nil
}

// helpers

func checkTag(n int64, entity, id string) error {
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanSearch(row pgx.Row) (*model.SearchRequest, error) {
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

func scanLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var socials, tools []byte
	err := row.Scan(&l.ID, &l.SearchID, &l.PlaceID, &l.Name, &l.Address, &l.Phone,
		&l.Website, &l.Domain, &l.Email, &l.EmailConfidence, &socials,
		&l.AutomationDetected, &tools, &l.ProbabilityScore, &l.GoogleRating,
		&l.Industry, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeLeadJSON(&l, socials, tools); err != nil {
		return nil, err
	}
	return &l, nil
}

// patchJSON encodes the JSON columns of a patch. Absent fields encode as
// nil so COALESCE keeps the stored value.
func patchJSON(p model.LeadPatch) (socials, tools []byte, err error) {
	if len(p.Socials) > 0 {
		if socials, err = json.Marshal(p.Socials); err != nil {
			return nil, nil, err
		}
	}
	if p.AutomationTools != nil {
		if tools, err = json.Marshal(p.AutomationTools); err != nil {
			return nil, nil, err
		}
	}
	return socials, tools, nil
}

func decodeLeadJSON(l *model.Lead, socials, tools []byte) error {
	if len(socials) > 0 {
		if err := json.Unmarshal(socials, &l.Socials); err != nil {
			return eris.Wrap(err, "unmarshal socials")
		}
	}
	if len(tools) > 0 {
		if err := json.Unmarshal(tools, &l.AutomationTools); err != nil {
			return eris.Wrap(err, "unmarshal automation tools")
		}
	}
	return nil
}
