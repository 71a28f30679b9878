package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/source"
)

var (
	_ source.DataSource = (*DB)(nil)
	_ source.Sink       = (*DB)(nil)
)

// UpsertConversation inserts or updates a conversation and replaces its
// participant list in one transaction. Structurally invalid conversations
// are rejected before anything is written.
func (db *DB) UpsertConversation(ctx context.Context, c *chat.Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		lastContent, lastSender, lastState string
		lastAt                             sql.NullInt64
	)
	if lm := c.LastMessage; lm != nil {
		lastContent, lastSender, lastState = lm.Content, lm.SenderID, string(lm.State)
		lastAt = sql.NullInt64{Int64: lm.Timestamp.UnixMilli(), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, name, kind, avatar, unread_count, archived,
			last_content, last_sender_id, last_state, last_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			avatar = excluded.avatar,
			unread_count = excluded.unread_count,
			archived = excluded.archived,
			last_content = excluded.last_content,
			last_sender_id = excluded.last_sender_id,
			last_state = excluded.last_state,
			last_at = excluded.last_at,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, string(c.Kind), c.Avatar, c.UnreadCount, c.Archived,
		lastContent, lastSender, lastState, lastAt,
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("upsert conversation %q: %w", c.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE conversation_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear participants %q: %w", c.ID, err)
	}
	for i, p := range c.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (conversation_id, position, user_id, username, avatar, presence)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, i, p.ID, p.Username, p.Avatar, string(p.Presence)); err != nil {
			return fmt.Errorf("insert participant %q in %q: %w", p.ID, c.ID, err)
		}
	}
	return tx.Commit()
}

// ListConversations returns conversations, most recently updated first.
func (db *DB) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, kind, avatar, unread_count, archived,
			last_content, last_sender_id, last_state, last_at, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		ps, err := db.participants(ctx, convs[i].ID)
		if err != nil {
			return nil, err
		}
		convs[i].Participants = ps
	}
	return convs, nil
}

// FindConversation returns a single conversation or source.ErrNotFound.
func (db *DB) FindConversation(ctx context.Context, id string) (chat.Conversation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, kind, avatar, unread_count, archived,
			last_content, last_sender_id, last_state, last_at, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, source.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	c.Participants, err = db.participants(ctx, id)
	if err != nil {
		return chat.Conversation{}, err
	}
	return c, nil
}

// ConversationCount returns the total number of conversations.
func (db *DB) ConversationCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

func (db *DB) participants(ctx context.Context, conversationID string) ([]chat.Participant, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, username, avatar, presence
		FROM participants WHERE conversation_id = ?
		ORDER BY position ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ps []chat.Participant
	for rows.Next() {
		var p chat.Participant
		var presence string
		if err := rows.Scan(&p.ID, &p.Username, &p.Avatar, &presence); err != nil {
			return nil, err
		}
		p.Presence = chat.Presence(presence)
		ps = append(ps, p)
	}
	return ps, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (chat.Conversation, error) {
	var (
		c                                        chat.Conversation
		kind, lastContent, lastSender, lastState string
		lastAt                                   sql.NullInt64
		createdAt, updatedAt                     int64
	)
	if err := s.Scan(&c.ID, &c.Name, &kind, &c.Avatar, &c.UnreadCount, &c.Archived,
		&lastContent, &lastSender, &lastState, &lastAt, &createdAt, &updatedAt); err != nil {
		return chat.Conversation{}, err
	}
	c.Kind = chat.Kind(kind)
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	if lastAt.Valid {
		c.LastMessage = &chat.LastMessage{
			Content:   lastContent,
			SenderID:  lastSender,
			Timestamp: time.UnixMilli(lastAt.Int64),
			State:     chat.DeliveryState(lastState),
		}
	}
	return c, nil
}
