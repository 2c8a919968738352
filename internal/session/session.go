// Package session keeps per-chat conversation state. Session rows live in
// sqlite; private keys live only in the in-memory KeyVault.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

type Stage string

const (
	StageIdle           Stage = "idle"
	StageAwaitingKey    Stage = "awaiting_key"
	StageReady          Stage = "ready"
	StageAwaitingAmount Stage = "awaiting_amount"
)

type Session struct {
	ID          string    `json:"session_id"`
	ChatID      int64     `json:"chat_id"`
	Stage       Stage     `json:"stage"`
	Address     string    `json:"address,omitempty"`
	ClaimSymbol string    `json:"claim_symbol,omitempty"`
	TradeSymbol string    `json:"trade_symbol,omitempty"`
	Claimed     bool      `json:"claimed"`
	Approved    bool      `json:"approved"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func IDFor(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}

// New returns the state of a chat that has never talked to the bot.
func New(chatID int64) Session {
	return Session{ID: IDFor(chatID), ChatID: chatID, Stage: StageIdle}
}

// CanTrade reports whether both the claim and the approval happened.
func (s Session) CanTrade() bool {
	return s.Claimed && s.Approved
}

// Reset forgets everything but the chat identity.
func (s *Session) Reset() {
	*s = New(s.ChatID)
}

type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session sqlite: %w", err)
	}
	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS sessions (
			chat_id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			address TEXT NOT NULL,
			claim_symbol TEXT NOT NULL,
			trade_symbol TEXT NOT NULL,
			claimed INTEGER NOT NULL,
			approved INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init session schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the stored session for chatID, or a fresh one.
func (s *Store) Load(chatID int64) (Session, error) {
	var (
		sess      Session
		stage     string
		claimed   int
		approved  int
		updatedMS int64
	)
	err := s.db.QueryRow(`SELECT session_id, stage, address, claim_symbol, trade_symbol, claimed, approved, updated_at
		FROM sessions WHERE chat_id = ?`, chatID).
		Scan(&sess.ID, &stage, &sess.Address, &sess.ClaimSymbol, &sess.TradeSymbol, &claimed, &approved, &updatedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return New(chatID), nil
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	sess.ChatID = chatID
	sess.Stage = Stage(stage)
	sess.Claimed = claimed != 0
	sess.Approved = approved != 0
	sess.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	return sess, nil
}

func (s *Store) Save(sess *Session) error {
	if sess.ID == "" {
		sess.ID = IDFor(sess.ChatID)
	}
	sess.UpdatedAt = s.now().UTC()
	return s.withLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO sessions (chat_id, session_id, stage, address, claim_symbol, trade_symbol, claimed, approved, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_id) DO UPDATE SET
				session_id=excluded.session_id,
				stage=excluded.stage,
				address=excluded.address,
				claim_symbol=excluded.claim_symbol,
				trade_symbol=excluded.trade_symbol,
				claimed=excluded.claimed,
				approved=excluded.approved,
				updated_at=excluded.updated_at
		`, sess.ChatID, sess.ID, string(sess.Stage), sess.Address, sess.ClaimSymbol, sess.TradeSymbol,
			boolInt(sess.Claimed), boolInt(sess.Approved), sess.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return nil
	})
}

func (s *Store) Delete(chatID int64) error {
	return s.withLock(func() error {
		if _, err := s.db.Exec("DELETE FROM sessions WHERE chat_id = ?", chatID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// withLock excludes other goroutines with mu and other processes with the
// file lock; a single flock handle does not exclude its own holders.
func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock session store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock session store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
