// Package identity exposes the locally signed-in user to the client core.
package identity

import (
	"sync"

	"github.com/matheus3301/chatline/internal/chat"
)

// Provider returns the current local user, if any.
type Provider interface {
	Current() (chat.User, bool)
}

// Static is a Provider holding a user set at startup or by a login flow.
type Static struct {
	mu   sync.RWMutex
	user *chat.User
}

// NewStatic returns a provider signed in as u. A user with an empty ID
// counts as signed out.
func NewStatic(u chat.User) *Static {
	s := &Static{}
	s.Set(u)
	return s
}

// Current returns the signed-in user.
func (s *Static) Current() (chat.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return chat.User{}, false
	}
	return *s.user, true
}

// Set signs in as u.
func (s *Static) Set(u chat.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		s.user = nil
		return
	}
	s.user = &u
}

// Clear signs out.
func (s *Static) Clear() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}
