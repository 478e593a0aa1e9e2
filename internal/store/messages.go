package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xonecas/parley/internal/chat"
)

const messageColumns = `id, conversation_id, role, content, state, sources, created_at`

// CreateMessage stores a new message in conversationID.
func (s *Store) CreateMessage(conversationID chat.ID, role chat.Role, content string, state chat.State) (*chat.Message, error) {
	cid, err := parseID(conversationID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	result, err := s.db.Exec(`
		INSERT INTO messages (conversation_id, role, content, state, sources, created_at, updated_at)
		VALUES (?, ?, ?, ?, '[]', ?, ?)
	`, cid, role, content, state, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	return &chat.Message{
		ID:             formatID(id),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		State:          state,
		CreatedAt:      now,
	}, nil
}

// UpdateMessage replaces the content, state and sources of a message and
// returns the whole record. Sources are stored only for finished messages.
func (s *Store) UpdateMessage(id chat.ID, content string, state chat.State, sources []chat.Source) (*chat.Message, error) {
	mid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if state != chat.StateFinished || sources == nil {
		sources = []chat.Source{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("marshal sources: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE messages SET content = ?, state = ?, sources = ?, updated_at = ? WHERE id = ?
	`, content, state, string(encoded), time.Now().UTC(), mid)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return s.GetMessage(id)
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(id chat.ID) (*chat.Message, error) {
	mid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, mid)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m, err
}

// ListMessages returns every message of a conversation, oldest first.
func (s *Store) ListMessages(conversationID chat.ID) ([]chat.Message, error) {
	cid, err := parseID(conversationID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY id ASC
	`, cid)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the last limit finished messages before beforeID, oldest first.
func (s *Store) RecentMessages(conversationID, beforeID chat.ID, limit int) ([]chat.Message, error) {
	cid, err := parseID(conversationID)
	if err != nil {
		return nil, err
	}
	bid, err := parseID(beforeID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM (
			SELECT * FROM messages
			WHERE conversation_id = ? AND id < ? AND state = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, cid, bid, chat.StateFinished, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ExpireProcessing moves every message still processing to state and returns the
// updated records. It is used at startup, when no reply can still arrive.
func (s *Store) ExpireProcessing(state chat.State) ([]chat.Message, error) {
	rows, err := s.db.Query(`SELECT id FROM messages WHERE state = ?`, chat.StateProcessing)
	if err != nil {
		return nil, fmt.Errorf("query processing messages: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []chat.Message
	for _, id := range ids {
		m, err := s.GetMessage(formatID(id))
		if err != nil {
			return nil, err
		}
		updated, err := s.UpdateMessage(m.ID, m.Content, state, nil)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *updated)
	}
	return expired, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*chat.Message, error) {
	var (
		id, conversationID int64
		role, state        string
		content, sources   string
		createdAt          time.Time
	)
	if err := row.Scan(&id, &conversationID, &role, &content, &state, &sources, &createdAt); err != nil {
		return nil, err
	}

	m := &chat.Message{
		ID:             formatID(id),
		ConversationID: formatID(conversationID),
		Role:           chat.Role(role),
		Content:        content,
		State:          chat.State(state),
		CreatedAt:      createdAt.UTC(),
	}
	if sources != "" {
		if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
			return nil, fmt.Errorf("decode sources of message %d: %w", id, err)
		}
	}
	normalized := m.Normalized()
	return &normalized, nil
}

func scanMessages(rows *sql.Rows) ([]chat.Message, error) {
	msgs := []chat.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}
