package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordHandoff inserts h, or refreshes updated_at if (self, room) was
// already recorded. fresh reports whether this was the first record.
func (db *DB) RecordHandoff(h *Handoff) (fresh bool, err error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRow(`SELECT 1 FROM handoffs WHERE self_id = ? AND room_id = ?`, h.SelfID, h.RoomID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		fresh = true
	case err != nil:
		return false, fmt.Errorf("lookup handoff: %w", err)
	}

	now := time.Now().UnixMilli()
	if h.CreatedAt == 0 {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	if _, err := tx.Exec(`
		INSERT INTO handoffs (self_id, room_id, peer_id, peer_name, request_id, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(self_id, room_id) DO UPDATE SET
			peer_name = CASE WHEN excluded.peer_name != '' THEN excluded.peer_name ELSE handoffs.peer_name END,
			request_id = CASE WHEN excluded.request_id != '' THEN excluded.request_id ELSE handoffs.request_id END,
			updated_at = excluded.updated_at`,
		h.SelfID, h.RoomID, h.PeerID, h.PeerName, h.RequestID, h.Role, h.CreatedAt, h.UpdatedAt); err != nil {
		return false, fmt.Errorf("upsert handoff: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit handoff: %w", err)
	}
	return fresh, nil
}

// GetHandoff returns the record for (self, room), or nil if none.
func (db *DB) GetHandoff(selfID, roomID string) (*Handoff, error) {
	var h Handoff
	err := db.QueryRow(`
		SELECT self_id, room_id, peer_id, peer_name, request_id, role, created_at, updated_at
		FROM handoffs WHERE self_id = ? AND room_id = ?`, selfID, roomID).
		Scan(&h.SelfID, &h.RoomID, &h.PeerID, &h.PeerName, &h.RequestID, &h.Role, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get handoff: %w", err)
	}
	return &h, nil
}

// ListHandoffs returns self's handoffs, most recently touched first.
func (db *DB) ListHandoffs(selfID string, limit int) ([]Handoff, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT self_id, room_id, peer_id, peer_name, request_id, role, created_at, updated_at
		FROM handoffs WHERE self_id = ?
		ORDER BY updated_at DESC, created_at DESC
		LIMIT ?`, selfID, limit)
	if err != nil {
		return nil, fmt.Errorf("list handoffs: %w", err)
	}
	defer rows.Close()

	var out []Handoff
	for rows.Next() {
		var h Handoff
		if err := rows.Scan(&h.SelfID, &h.RoomID, &h.PeerID, &h.PeerName, &h.RequestID, &h.Role, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
