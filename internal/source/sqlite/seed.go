package sqlite

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatline/internal/source"
)

// SeedResult counts what Seed wrote.
type SeedResult struct {
	Conversations int
	Messages      int
}

// Seed copies every conversation and its history from src into the database.
// Running it twice is harmless: rows are upserted.
func (db *DB) Seed(ctx context.Context, src source.DataSource) (*SeedResult, error) {
	convs, err := src.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	res := &SeedResult{}
	for i := range convs {
		c := &convs[i]
		if err := db.UpsertConversation(ctx, c); err != nil {
			return nil, err
		}
		res.Conversations++

		msgs, err := src.Messages(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("messages for %q: %w", c.ID, err)
		}
		for j := range msgs {
			if err := db.UpsertMessage(ctx, &msgs[j]); err != nil {
				return nil, fmt.Errorf("upsert message %q: %w", msgs[j].ID, err)
			}
			res.Messages++
		}
	}
	return res, nil
}
