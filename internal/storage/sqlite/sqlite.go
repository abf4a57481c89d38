package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"hellmfmt/internal/storage"
)

// Store реализует storage.Store поверх SQLite.
type Store struct {
	db *sql.DB
}

// Open инициализирует соединение и выполняет миграции.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Каждое соединение с :memory: видит свою базу.
		db.SetMaxOpenConns(1)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS format_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			request_id TEXT NOT NULL,
			source TEXT NOT NULL,
			subject TEXT,
			path TEXT NOT NULL,
			provider TEXT,
			status TEXT NOT NULL,
			error_kind TEXT,
			exit_code INTEGER,
			duration_ns INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_ts ON format_history(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_history_path_ts ON format_history(path, ts);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveHistory сохраняет запись о форматировании.
func (s *Store) SaveHistory(ctx context.Context, rec storage.HistoryRecord) error {
	ts := rec.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO format_history(request_id, source, subject, path, provider, status, error_kind, exit_code, duration_ns, ts) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		rec.RequestID, rec.Source, rec.Subject, rec.Path, rec.Provider, rec.Status, rec.ErrorKind, rec.ExitCode, int64(rec.Duration), ts.UTC())
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

const historyColumns = `request_id, source, subject, path, provider, status, error_kind, exit_code, duration_ns, ts`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (storage.HistoryRecord, error) {
	var rec storage.HistoryRecord
	var subject, provider, kind sql.NullString
	var exitCode sql.NullInt64
	var durationNS int64
	var ts string
	if err := row.Scan(&rec.RequestID, &rec.Source, &subject, &rec.Path, &provider, &rec.Status, &kind, &exitCode, &durationNS, &ts); err != nil {
		return rec, err
	}
	rec.Subject = subject.String
	rec.Provider = provider.String
	rec.ErrorKind = kind.String
	rec.ExitCode = int(exitCode.Int64)
	rec.Duration = time.Duration(durationNS)
	parsedTS, err := parseSQLiteTS(ts)
	if err != nil {
		return rec, fmt.Errorf("parse history timestamp: %w", err)
	}
	rec.TS = parsedTS
	return rec, nil
}

// LatestForPath возвращает последнюю запись по файлу.
func (s *Store) LatestForPath(ctx context.Context, path string) (storage.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM format_history WHERE path = ? ORDER BY ts DESC, id DESC LIMIT 1`, path)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.HistoryRecord{}, fmt.Errorf("history for %s: %w", path, storage.ErrNotFound)
		}
		return storage.HistoryRecord{}, fmt.Errorf("query latest history: %w", err)
	}
	return rec, nil
}

// QueryHistory возвращает историю по фильтрам, новые записи первыми.
func (s *Store) QueryHistory(ctx context.Context, q storage.HistoryQuery) ([]storage.HistoryRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	from := q.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	to := q.To
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+historyColumns+`
FROM format_history
WHERE ts >= ? AND ts <= ? AND (? = '' OR path = ?)
ORDER BY ts DESC, id DESC
LIMIT ?`, from.UTC(), to.UTC(), q.Path, q.Path, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]storage.HistoryRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

func parseSQLiteTS(v string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported sqlite time format: %q", v)
}

// Close закрывает соединение.
func (s *Store) Close() error {
	return s.db.Close()
}
