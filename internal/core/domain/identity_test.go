package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveID(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"string", "  abc ", "abc", true},
		{"blank string", "   ", "", false},
		{"json number", json.Number("42"), "42", true},
		{"int", 7, "7", true},
		{"float", float64(12), "12", true},
		{"id wins over _id", map[string]any{"_id": "mongo", "id": "plain"}, "plain", true},
		{"_id wins over username", map[string]any{"username": "bob", "_id": "m1"}, "m1", true},
		{"username fallback", map[string]any{"username": "bob"}, "bob", true},
		{"nested id", map[string]any{"id": map[string]any{"_id": "deep"}}, "deep", true},
		{"no identifier", map[string]any{"name": "Bob"}, "", false},
		{"identifiable", LikedUser{Username: "carol"}, "carol", true},
		{"unsupported", []string{"x"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveID(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSameID(t *testing.T) {
	assert.True(t, SameID("Alice", "alice"))
	assert.False(t, SameID("alice", "bob"))
	assert.False(t, SameID("", ""))
	assert.False(t, SameID("a", ""))
}

func TestNewViewer(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		v := NewViewer("u1", "bob", "Bob", "http://a/b.png")
		assert.Equal(t, Viewer{ID: "u1", Username: "bob", Name: "Bob", Avatar: "http://a/b.png"}, v)
	})
	t.Run("id synthesized from username", func(t *testing.T) {
		v := NewViewer("", "bob", "", "")
		assert.Equal(t, "viewer-bob", v.ID)
		assert.Equal(t, AvatarFromSeed("bob"), v.Avatar)
	})
	t.Run("nothing known is the guest", func(t *testing.T) {
		v := NewViewer("", "", "", "")
		assert.True(t, v.IsGuest())
	})
}

func TestViewerOwns(t *testing.T) {
	v := viewer("Bob")
	assert.True(t, v.Owns(Author{Username: "bob"}))
	assert.False(t, v.Owns(Author{ID: "alice"}))
}
