package identity

import (
	"slices"
	"strings"

	"github.com/matheus3301/chatline/internal/chat"
)

// Directory is the list of users the local user can start a conversation
// with.
type Directory struct {
	users []chat.User
}

// NewDirectory returns a directory over users, kept in the given order.
func NewDirectory(users []chat.User) *Directory {
	return &Directory{users: slices.Clone(users)}
}

// Search returns users whose username or display name contains query,
// case-insensitively. excludeID is left out, usually the local user.
// A blank query matches nobody.
func (d *Directory) Search(query, excludeID string) []chat.User {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []chat.User
	for _, u := range d.users {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.DisplayName), q) {
			out = append(out, u)
		}
	}
	return out
}

// Lookup finds a user by exact id or username.
func (d *Directory) Lookup(key string) (chat.User, bool) {
	for _, u := range d.users {
		if u.ID == key || u.Username == key {
			return u, true
		}
	}
	return chat.User{}, false
}
