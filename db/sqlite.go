package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("audit store closed")

// PredictionLog is one audited batch.
type PredictionLog struct {
	ID            int64     `json:"id"`
	RequestID     string    `json:"request_id"`
	ModelVariant  string    `json:"model_variant"`
	ModelChecksum string    `json:"model_checksum,omitempty"`
	Rows          int       `json:"rows"`
	CacheHits     int       `json:"cache_hits"`
	Predictions   []float64 `json:"predictions"`
	LatencyMS     float64   `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

type Options struct {
	Path      string
	QueueSize int
	// OnDrop is called when an entry is discarded because the queue is full.
	OnDrop func()
}

// Store persists prediction logs to SQLite. Writes go through a buffered
// queue drained by a single goroutine so callers never wait on disk.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	onDrop func()

	queue  chan PredictionLog
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func Open(opts Options, logger *zap.Logger) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("audit db path is empty")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", opts.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(1)

	s := &Store{
		db:     database,
		logger: logger.With(zap.String("component", "audit")),
		onDrop: opts.OnDrop,
		queue:  make(chan PredictionLog, opts.QueueSize),
	}
	if err := s.createTables(); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id TEXT NOT NULL,
            model_variant TEXT NOT NULL,
            model_checksum TEXT,
            row_count INTEGER NOT NULL,
            cache_hits INTEGER DEFAULT 0,
            predictions TEXT NOT NULL,
            latency_ms REAL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// Enqueue hands entry to the writer goroutine. It reports false when the
// entry was dropped because the queue is full or the store is closed.
func (s *Store) Enqueue(entry PredictionLog) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- entry:
		return true
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
		s.logger.Warn("audit queue full, dropping entry", zap.String("request_id", entry.RequestID))
		return false
	}
}

func (s *Store) run() {
	defer s.wg.Done()
	for entry := range s.queue {
		if err := s.Save(context.Background(), entry); err != nil {
			s.logger.Error("save prediction log failed", zap.Error(err), zap.String("request_id", entry.RequestID))
		}
	}
}

// Save writes entry synchronously.
func (s *Store) Save(ctx context.Context, entry PredictionLog) error {
	preds, err := json.Marshal(entry.Predictions)
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO predictions (
            request_id, model_variant, model_checksum, row_count, cache_hits, predictions, latency_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.ModelVariant,
		entry.ModelChecksum,
		entry.Rows,
		entry.CacheHits,
		string(preds),
		entry.LatencyMS,
		entry.CreatedAt.UTC(),
	)
	return err
}

// QueryRecent returns up to limit logs, newest first.
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, request_id, model_variant, model_checksum, row_count, cache_hits, predictions, latency_ms, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]PredictionLog, 0)
	for rows.Next() {
		var (
			l        PredictionLog
			checksum sql.NullString
			preds    string
			latency  sql.NullFloat64
		)
		if err := rows.Scan(&l.ID, &l.RequestID, &l.ModelVariant, &checksum, &l.Rows, &l.CacheHits, &preds, &latency, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ModelChecksum = checksum.String
		l.LatencyMS = latency.Float64
		if err := json.Unmarshal([]byte(preds), &l.Predictions); err != nil {
			return nil, fmt.Errorf("decode predictions of log %d: %w", l.ID, err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Close drains the queue and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}
