package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "leads",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "leads",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "leads",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_DoNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"id", "search_id", "place_id", "name"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_leads"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_leads"}, cols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("search_id", "place_id"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "leads",
		Columns:      cols,
		ConflictKeys: []string{"search_id", "place_id"},
		UpdateCols:   []string{},
	}, [][]any{{"l1", "s1", "p1", "A"}, {"l2", "s1", "p2", "B"}})

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_leads"}, []string{"id"}).
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "leads",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"l1"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for leads")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "public.leads",
		Columns:      []string{"id", "name", "phone"},
		ConflictKeys: []string{"id"},
	}
	got := upsertSQL(cfg, TempTableName(cfg.Table))
	assert.Equal(t,
		`INSERT INTO "public"."leads" ("id", "name", "phone") SELECT "id", "name", "phone" FROM "_tmp_upsert_public_leads" ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "phone" = EXCLUDED."phone"`,
		got)

	cfg.UpdateCols = []string{"phone"}
	assert.Contains(t, upsertSQL(cfg, "t"), `DO UPDATE SET "phone" = EXCLUDED."phone"`)
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"leads"`, sanitizeTable("leads"))
	assert.Equal(t, `"public"."leads"`, sanitizeTable("public.leads"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
