package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadState reads the persisted identity. Missing keys come back empty.
func (db *DB) LoadState() (LocalState, error) {
	rows, err := db.Query(`SELECT key, value FROM local_state WHERE key IN (?, ?, ?)`,
		KeyToken, KeyUser, KeyLastChat)
	if err != nil {
		return LocalState{}, fmt.Errorf("load state: %w", err)
	}
	defer rows.Close()

	var st LocalState
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return LocalState{}, fmt.Errorf("scan state: %w", err)
		}
		switch key {
		case KeyToken:
			st.Token = value
		case KeyUser:
			st.User = value
		case KeyLastChat:
			st.LastChat = value
		}
	}
	return st, rows.Err()
}

// SaveLogin writes token and user together so a crash never leaves one
// without the other. Unless keepLastChat is set, the stored lastChat is
// removed in the same transaction, for a login that switches users.
func (db *DB) SaveLogin(token, user string, keepLastChat bool) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, kv := range [][2]string{{KeyToken, token}, {KeyUser, user}} {
		if err := putState(tx, kv[0], kv[1], now); err != nil {
			return err
		}
	}
	if !keepLastChat {
		if _, err := tx.Exec(`DELETE FROM local_state WHERE key = ?`, KeyLastChat); err != nil {
			return fmt.Errorf("clear last chat: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit login: %w", err)
	}
	return nil
}

// SaveUser replaces the stored user, keeping the token.
func (db *DB) SaveUser(user string) error {
	return putState(db, KeyUser, user, time.Now().UnixMilli())
}

// SaveLastChat records the room to resume.
func (db *DB) SaveLastChat(roomID string) error {
	return putState(db, KeyLastChat, roomID, time.Now().UnixMilli())
}

// GetState returns one value. ok is false when the key is unset.
func (db *DB) GetState(key string) (value string, ok bool, err error) {
	err = db.QueryRow(`SELECT value FROM local_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, true, nil
}

// ClearState removes token, user and lastChat in one transaction.
func (db *DB) ClearState() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM local_state WHERE key IN (?, ?, ?)`,
		KeyToken, KeyUser, KeyLastChat); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func putState(e execer, key, value string, now int64) error {
	_, err := e.Exec(`
		INSERT INTO local_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}
