package sqlite

import (
	"context"
	"strings"

	"github.com/matheus3301/chatline/internal/chat"
)

// SearchMessages returns messages whose content contains query
// (case-insensitive), optionally scoped to one conversation.
func (db *DB) SearchMessages(ctx context.Context, query, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT msg_id, conversation_id, sender_id, sender_name, content, kind,
			url, file_name, file_size, latitude, longitude, state, reply_to, timestamp
		FROM messages
		WHERE content LIKE ? ESCAPE '\'`

	args := []any{"%" + escapeLike(query) + "%"}
	if conversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY timestamp DESC, seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
