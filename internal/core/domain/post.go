package domain

import (
	"slices"
	"strings"
	"time"
)

const pendingCommentPrefix = "pending-"

type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Pending reports whether the comment still waits for its server id.
func (c Comment) Pending() bool {
	return strings.HasPrefix(c.ID, pendingCommentPrefix)
}

// PendingCommentID namespaces a client-side temporary id.
func PendingCommentID(token string) string {
	return pendingCommentPrefix + token
}

// Post is a value: every update produces a new Post.
type Post struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Media     []Media   `json:"media"`
	Likes     LikeState `json:"likes"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy safe to hand to read-only views.
func (p Post) Clone() Post {
	out := p
	out.Media = slices.Clone(p.Media)
	out.Likes = p.Likes.Clone()
	out.Comments = slices.Clone(p.Comments)
	return out
}

// Slides lists the media shown in the post carousel.
func (p Post) Slides() []Media {
	slides := make([]Media, 0, len(p.Media))
	for _, m := range p.Media {
		if m.Src != "" {
			slides = append(slides, m)
		}
	}
	return slides
}

// Cover is the first slide, if any.
func (p Post) Cover() (Media, bool) {
	slides := p.Slides()
	if len(slides) == 0 {
		return Media{}, false
	}
	return slides[0], true
}

// CommentIndex returns the position of the comment, or -1.
func (p Post) CommentIndex(commentID string) int {
	return slices.IndexFunc(p.Comments, func(c Comment) bool { return c.ID == commentID })
}

// Profile is what the profile page renders.
type Profile struct {
	Owner  Author `json:"owner"`
	Viewer Viewer `json:"viewer"`
	Posts  []Post `json:"posts"`
	IsOwn  bool   `json:"isOwn"`
}

func (p Profile) Clone() Profile {
	out := p
	out.Posts = make([]Post, len(p.Posts))
	for i, post := range p.Posts {
		out.Posts[i] = post.Clone()
	}
	return out
}

// NewPost is the payload of the composer.
type NewPost struct {
	Text   string
	Images []Upload
	Videos []Upload
}

// Upload is a media file attached to a new post.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (n NewPost) Empty() bool {
	return strings.TrimSpace(n.Text) == "" && len(n.Images) == 0 && len(n.Videos) == 0
}
