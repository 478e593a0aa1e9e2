package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xonecas/parley/internal/chat"
)

// EnsureUser returns the user with email, creating it if needed.
func (s *Store) EnsureUser(email string, role chat.Role) (*chat.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("ensure user: empty email")
	}
	if !role.Valid() {
		role = chat.RoleUser
	}

	_, err := s.db.Exec(`
		INSERT INTO users (email, role, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`, email, role, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	var (
		id       int64
		userRole string
	)
	err = s.db.QueryRow(`SELECT id, role FROM users WHERE email = ?`, email).Scan(&id, &userRole)
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &chat.User{ID: formatID(id), Email: email, Role: chat.Role(userRole), Valid: true}, nil
}

// CreateConversation creates a named conversation owned by userID.
func (s *Store) CreateConversation(userID chat.ID, name string) (*chat.Conversation, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "New chat"
	}
	now := time.Now().UTC()

	result, err := s.db.Exec(`
		INSERT INTO conversations (user_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, uid, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}

	return &chat.Conversation{ID: formatID(id), Name: name, UserID: userID}, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(id chat.ID) (*chat.Conversation, error) {
	cid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var (
		name   string
		userID int64
	)
	err = s.db.QueryRow(`SELECT name, user_id FROM conversations WHERE id = ?`, cid).Scan(&name, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return &chat.Conversation{ID: id, Name: name, UserID: formatID(userID)}, nil
}

// ListConversations returns the conversations of userID, newest first.
func (s *Store) ListConversations(userID chat.ID) ([]chat.Conversation, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, name FROM conversations WHERE user_id = ? ORDER BY id DESC
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	convs := []chat.Conversation{}
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, chat.Conversation{ID: formatID(id), Name: name, UserID: userID})
	}
	return convs, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(id chat.ID) error {
	cid, err := parseID(id)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, cid)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}
