package identity

import (
	"slices"
	"testing"

	"github.com/matheus3301/chatline/internal/chat"
)

func TestStatic(t *testing.T) {
	p := NewStatic(chat.User{ID: "u1", Username: "demo"})
	u, ok := p.Current()
	if !ok || u.ID != "u1" {
		t.Fatalf("Current() = %+v, %v; want u1", u, ok)
	}

	p.Clear()
	if _, ok := p.Current(); ok {
		t.Error("Current() ok after Clear")
	}

	p.Set(chat.User{})
	if _, ok := p.Current(); ok {
		t.Error("empty user counts as signed in")
	}
}

func TestDirectorySearch(t *testing.T) {
	d := NewDirectory([]chat.User{
		{ID: "me", Username: "demouser", DisplayName: "Demo User"},
		{ID: "a", Username: "alicew", DisplayName: "Alice Wonderland"},
		{ID: "b", Username: "bobthebuilder", DisplayName: "Bob Builder"},
	})

	tests := []struct {
		query string
		want  []string
	}{
		{"ALI", []string{"a"}},
		{"builder", []string{"b"}},
		{"user", nil},
		{"  ", nil},
		{"e", []string{"a", "b"}},
	}
	for _, tt := range tests {
		var got []string
		for _, u := range d.Search(tt.query, "me") {
			got = append(got, u.ID)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("Search(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}

	if u, ok := d.Lookup("alicew"); !ok || u.ID != "a" {
		t.Errorf("Lookup(alicew) = %+v, %v", u, ok)
	}
	if u, ok := d.Lookup("b"); !ok || u.Username != "bobthebuilder" {
		t.Errorf("Lookup(b) = %+v, %v", u, ok)
	}
	if _, ok := d.Lookup("zed"); ok {
		t.Error("Lookup(zed) found a user")
	}
}
