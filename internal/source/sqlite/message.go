package sqlite

import (
	"context"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
)

// UpsertMessage inserts or updates a message (idempotent on conversation_id + msg_id).
// Updates keep the original insertion position.
func (db *DB) UpsertMessage(ctx context.Context, m *chat.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, content, kind,
			url, file_name, file_size, latitude, longitude, state, reply_to, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			content = excluded.content,
			state = excluded.state`,
		m.ConversationID, m.ID, m.SenderID, m.SenderName, m.Content, string(m.Kind),
		m.URL, m.FileName, m.FileSize, m.Latitude, m.Longitude, string(m.State), m.ReplyTo,
		m.Timestamp.UnixMilli())
	return err
}

// Messages returns a conversation's messages in insertion order.
func (db *DB) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT msg_id, conversation_id, sender_id, sender_name, content, kind,
			url, file_name, file_size, latitude, longitude, state, reply_to, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []chat.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func scanMessage(s scanner) (chat.Message, error) {
	var (
		m           chat.Message
		kind, state string
		ts          int64
	)
	if err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &kind,
		&m.URL, &m.FileName, &m.FileSize, &m.Latitude, &m.Longitude, &state, &m.ReplyTo, &ts); err != nil {
		return chat.Message{}, err
	}
	m.Kind = chat.PayloadKind(kind)
	m.State = chat.DeliveryState(state)
	m.Timestamp = time.UnixMilli(ts)
	return m, nil
}
