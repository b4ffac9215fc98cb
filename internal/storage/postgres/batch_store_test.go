package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

func testBatch(t *testing.T) (scraper.Batch, []byte) {
	t.Helper()
	b := scraper.Batch{
		BatchID:   "20260824_143005",
		CreatedAt: time.Date(2026, 8, 24, 14, 30, 5, 0, time.UTC),
		Metadata: scraper.BatchMetadata{
			Timestamp:     "2026-08-24T14:30:05Z",
			TotalPatterns: 1,
			Sources:       []string{"AWS Architecture Center"},
			BatchID:       "20260824_143005",
		},
		Architectures: []scraper.ArchitectureRecord{
			{
				Name: "Serverless Web App",
				Type: scraper.RecordTypePattern,
				Source: scraper.SourceRef{
					Name: "AWS Architecture Center",
					Type: scraper.ProviderAWS,
					URL:  "https://aws.amazon.com/architecture/",
				},
				Tags:     []string{},
				Metadata: map[string]string{scraper.MetadataScrapedAt: "2026-08-24T14:30:00Z"},
			},
		},
	}
	doc, err := json.Marshal(b)
	require.NoError(t, err)
	return b, doc
}

func newMockStore(t *testing.T) (*BatchStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewBatchStoreWithPool(mock, "batches")
	require.NoError(t, err)
	return store, mock
}

func TestNewBatchStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewBatchStoreWithPool(nil, "batches")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewBatchStoreWithPool(mock, `batches; DROP TABLE batches`)
	require.Error(t, err)

	store, err := NewBatchStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "batches", store.table)
}

func TestInsertBatch(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	b, doc := testBatch(t)

	mock.ExpectExec(`INSERT INTO batches`).
		WithArgs(b.BatchID, b.CreatedAt, doc).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertBatch(context.Background(), b))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchRequiresID(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	err := store.InsertBatch(context.Background(), scraper.Batch{})
	require.Error(t, err)
}

func TestListBatches(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	b, doc := testBatch(t)

	mock.ExpectQuery(`SELECT document FROM batches ORDER BY created_at DESC, id DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))

	got, err := store.ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, b.BatchID, got[0].BatchID)
	require.Equal(t, b.Metadata.TotalPatterns, got[0].Metadata.TotalPatterns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT document FROM batches ORDER BY created_at DESC, id DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetLatest(context.Background())
	require.ErrorIs(t, err, scraper.ErrBatchNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	b, doc := testBatch(t)

	mock.ExpectQuery(`SELECT document FROM batches WHERE batch_id = \$1`).
		WithArgs(b.BatchID).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))

	got, err := store.GetByID(context.Background(), b.BatchID)
	require.NoError(t, err)
	require.Equal(t, b.Architectures[0].Name, got.Architectures[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT document FROM batches WHERE batch_id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, scraper.ErrBatchNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatterns(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	b, _ := testBatch(t)
	recordsDoc, err := json.Marshal(b.Architectures)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT document->'architectures' FROM batches WHERE batch_id = \$1`).
		WithArgs(b.BatchID).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(recordsDoc))

	records, err := store.GetPatterns(context.Background(), b.BatchID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Serverless Web App", records[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
