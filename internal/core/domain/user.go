package domain

import (
	"net/url"
	"strings"
)

const avatarSeedURL = "https://i.pravatar.cc/120?u="

// AvatarFromSeed builds the placeholder avatar used when a user has no upload.
func AvatarFromSeed(seed string) string {
	return avatarSeedURL + url.QueryEscape(seed)
}

// Viewer is the acting identity. It never changes during an interaction.
type Viewer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

// GuestViewer is used when nothing is known about the viewer.
func GuestViewer() Viewer {
	return Viewer{
		ID:       "viewer-guest",
		Username: "guest",
		Name:     "Guest",
		Avatar:   AvatarFromSeed("guest"),
	}
}

// NewViewer completes a partially known viewer. Without an id, the identity is
// derived from the username (or name) the same way the UI seeds avatars.
func NewViewer(id, username, name, avatar string) Viewer {
	id = strings.TrimSpace(id)
	username = strings.TrimSpace(username)
	if id == "" && username == "" && name == "" {
		return GuestViewer()
	}

	seed := username
	if seed == "" {
		seed = name
	}
	if seed == "" {
		seed = "viewer"
	}
	if id == "" {
		id = "viewer-" + seed
	}
	if username == "" {
		username = seed
	}
	if avatar == "" {
		avatar = AvatarFromSeed(username)
	}
	return Viewer{ID: id, Username: username, Name: name, Avatar: avatar}
}

func (v Viewer) IdentityKey() string {
	if v.ID != "" {
		return v.ID
	}
	return v.Username
}

// IsGuest reports whether the viewer is the anonymous placeholder.
func (v Viewer) IsGuest() bool {
	return v.ID == "viewer-guest"
}

// AsLikedUser synthesizes the liked-users entry for this viewer.
func (v Viewer) AsLikedUser() LikedUser {
	return LikedUser{ID: v.ID, Username: v.Username, Name: v.Name, Avatar: v.Avatar}
}

// AsAuthor is used for pending comments before the server answers.
func (v Viewer) AsAuthor() Author {
	return Author{ID: v.ID, Username: v.Username, Name: v.Name, Avatar: v.Avatar}
}

// Owns reports whether the viewer is the given profile owner (case-insensitive).
func (v Viewer) Owns(owner Author) bool {
	return SameID(v.IdentityKey(), owner.IdentityKey())
}

// LikedUser is a member of a post's liked-users set.
type LikedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar"`
}

// IdentityKey is the id, falling back to the username.
func (u LikedUser) IdentityKey() string {
	if u.ID != "" {
		return u.ID
	}
	return u.Username
}

// Author is the user behind a post or a comment.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Location string `json:"location,omitempty"`
}

func (a Author) IdentityKey() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Username
}
