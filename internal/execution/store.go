package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
)

// Store keeps the history of tracked operations.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	lock *flock.Flock
}

type ListFilter struct {
	Status    string
	SessionID string
	Limit     int
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create operation store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create operation lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open operation sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS operations (
			operation_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_operations_status_updated ON operations(status, updated_at DESC);",
		"CREATE INDEX IF NOT EXISTS idx_operations_session_updated ON operations(session_id, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init operation schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(record OperationRecord) error {
	if strings.TrimSpace(record.OperationID) == "" {
		return fmt.Errorf("save operation: missing operation id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock operation store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock operation store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	createdUnix, _ := parseRFC3339Unix(record.CreatedAt)
	updatedUnix, _ := parseRFC3339Unix(record.UpdatedAt)
	if createdUnix == 0 {
		createdUnix = time.Now().UTC().Unix()
	}
	if updatedUnix == 0 {
		updatedUnix = time.Now().UTC().Unix()
	}

	_, err = s.db.Exec(`
		INSERT INTO operations (operation_id, session_id, kind, status, tx_hash, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(operation_id) DO UPDATE SET
			session_id=excluded.session_id,
			kind=excluded.kind,
			status=excluded.status,
			tx_hash=excluded.tx_hash,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, record.OperationID, record.SessionID, string(record.Kind), string(record.Status), record.TxHash, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save operation: %w", err)
	}
	return nil
}

func (s *Store) Get(operationID string) (OperationRecord, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM operations WHERE operation_id = ?", operationID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OperationRecord{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("operation not found: %s", operationID))
		}
		return OperationRecord{}, fmt.Errorf("read operation: %w", err)
	}
	var record OperationRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return OperationRecord{}, fmt.Errorf("decode operation payload: %w", err)
	}
	return record, nil
}

// List returns the most recently updated operations matching filter.
func (s *Store) List(filter ListFilter) ([]OperationRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if status := strings.TrimSpace(filter.Status); status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	if session := strings.TrimSpace(filter.SessionID); session != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, session)
	}
	query := "SELECT payload FROM operations"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC, created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	records := make([]OperationRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}
		var record OperationRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode operation row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation rows: %w", err)
	}
	return records, nil
}

func parseRFC3339Unix(v string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, false
	}
	return t.UTC().Unix(), true
}
