package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresDocumentTable    = "wearsync_documents"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore backs the document store with a single revisioned table.
// The conditional write runs as one UPDATE guarded by the expected revision,
// so concurrent writers race at the database rather than in process memory.
type PostgresStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{
		dsn:       dsn,
		tableName: postgresDocumentTable,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (Document, error) {
	if err := s.ensureReady(); err != nil {
		return Document{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT content, revision FROM %s WHERE path = $1", postgresQuoteIdentifier(s.tableName))
	var content string
	var revision int64
	err := s.db.QueryRowContext(ctx, query, path).Scan(&content, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return Document{}, err
	}
	return Document{Path: path, Content: content, Revision: formatRevision(revision)}, nil
}

func (s *PostgresStore) Put(ctx context.Context, path, content, ifMatch string) (PutResult, error) {
	if err := s.ensureReady(); err != nil {
		return PutResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	if ifMatch == "" {
		query := fmt.Sprintf(`
			INSERT INTO %s (path, content, revision, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (path) DO NOTHING`, postgresQuoteIdentifier(s.tableName))
		result, err := s.db.ExecContext(ctx, query, path, content)
		if err != nil {
			return PutResult{}, err
		}
		inserted, err := result.RowsAffected()
		if err != nil {
			return PutResult{}, err
		}
		if inserted == 0 {
			current, _ := s.currentRevision(ctx, path)
			return PutResult{Status: PutConflict, CurrentRevision: current}, nil
		}
		return PutResult{Status: PutOK, Revision: formatRevision(1)}, nil
	}

	expected, err := parseRevision(ifMatch)
	if err != nil {
		return PutResult{}, err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET content = $1, revision = revision + 1, updated_at = NOW()
		WHERE path = $2 AND revision = $3
		RETURNING revision`, postgresQuoteIdentifier(s.tableName))
	var revision int64
	err = s.db.QueryRowContext(ctx, query, content, path, expected).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		current, _ := s.currentRevision(ctx, path)
		return PutResult{Status: PutConflict, CurrentRevision: current}, nil
	}
	if err != nil {
		return PutResult{}, err
	}
	return PutResult{Status: PutOK, Revision: formatRevision(revision)}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) currentRevision(ctx context.Context, path string) (string, error) {
	query := fmt.Sprintf("SELECT revision FROM %s WHERE path = $1", postgresQuoteIdentifier(s.tableName))
	var revision int64
	err := s.db.QueryRowContext(ctx, query, path).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return formatRevision(revision), nil
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				path TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				revision BIGINT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func formatRevision(revision int64) string {
	return fmt.Sprintf("rev_%d", revision)
}

func parseRevision(marker string) (int64, error) {
	trimmed := strings.TrimPrefix(marker, "rev_")
	var revision int64
	if _, err := fmt.Sscanf(trimmed, "%d", &revision); err != nil {
		return 0, fmt.Errorf("%w: revision marker %q", ErrInvalidInput, marker)
	}
	return revision, nil
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
