package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/docuchat/backend-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock
}

func TestDocumentService_CreateRejectsNonPDF(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewDocumentService(db, nil, 0)

	// magic bytes不匹配，任何数据库/存储调用都不应发生
	_, err := svc.Create(context.Background(), "My Doc", "doc.pdf", []byte("PK\x03\x04not a pdf"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidFile))
	assert.Equal(t, 400, errors.GetAppError(err).HTTPCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_CreateRequiresTitle(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewDocumentService(db, nil, 0)

	_, err := svc.Create(context.Background(), "   ", "doc.pdf", []byte("%PDF-1.7"))

	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_CreateRejectsOversizeFile(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewDocumentService(db, nil, 10)

	data := []byte("%PDF-1.7" + strings.Repeat("a", 100))
	_, err := svc.Create(context.Background(), "My Doc", "doc.pdf", data)

	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_ListOrdersByUploadTime(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewDocumentService(db, nil, 0)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"document_id", "title", "status", "uploaded_at"}).
		AddRow(2, "newer", "ready", now).
		AddRow(1, "older", "ready", now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT (.+) FROM "documents" ORDER BY uploaded_at DESC`).WillReturnRows(rows)

	docs, err := svc.List(context.Background())
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "newer", docs[0].Title)
	assert.Equal(t, "older", docs[1].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewDocumentService(db, nil, 0)

	mock.ExpectQuery(`SELECT (.+) FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}))

	_, err := svc.Get(context.Background(), 42)

	assert.True(t, errors.IsCode(err, errors.ErrCodeResourceNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_DeleteNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewDocumentService(db, nil, 0)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "documents"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := svc.Delete(context.Background(), 42)

	assert.True(t, errors.IsCode(err, errors.ErrCodeResourceNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewDocumentService(db, nil, 0)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.UpdateStatus(context.Background(), 1, "ready")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_GetChunksOrdered(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewDocumentService(db, nil, 0)

	rows := sqlmock.NewRows([]string{"chunk_id", "document_id", "chunk_index", "content"}).
		AddRow(1, 1, 0, "first").
		AddRow(2, 1, 1, "second")
	mock.ExpectQuery(`SELECT (.+) FROM "chunks" WHERE document_id = (.+) ORDER BY chunk_index ASC`).
		WithArgs(1).
		WillReturnRows(rows)

	chunks, err := svc.GetChunks(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}
