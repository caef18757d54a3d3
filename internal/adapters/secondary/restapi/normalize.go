package restapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
)

// This file is the single normalization boundary: upstream payloads come in
// many ad hoc shapes, and nothing past these functions ever sniffs a shape.

// normalizer carries the media base URL used to absolutize upload paths.
type normalizer struct {
	mediaURL string
}

// --- USERS ---

func (n normalizer) viewer(raw any) (domain.Viewer, error) {
	m := unwrap(raw, "data", "user")
	if m == nil {
		return domain.Viewer{}, fmt.Errorf("%w: viewer is not an object", domain.ErrMalformedResponse)
	}
	id, _ := domain.ResolveID(firstOf(m, "id", "_id", "userId"))
	username := str(m, "username")
	if id == "" && username == "" {
		return domain.Viewer{}, fmt.Errorf("%w: viewer without identifier", domain.ErrMalformedResponse)
	}
	return domain.NewViewer(id, username, displayName(m), n.avatar(m)), nil
}

func (n normalizer) author(raw any) domain.Author {
	switch x := raw.(type) {
	case map[string]any:
		id, _ := domain.ResolveID(x)
		username := str(x, "username")
		avatar := n.avatar(x)
		if avatar == "" {
			avatar = domain.AvatarFromSeed(fallback(username, "user"))
		}
		return domain.Author{
			ID:       id,
			Username: username,
			Name:     fallback(displayName(x), "Unknown user"),
			Avatar:   avatar,
			Location: location(x),
		}
	default:
		// Bare id: the user was not populated upstream.
		id, _ := domain.ResolveID(x)
		return domain.Author{ID: id, Name: "Unknown user", Avatar: domain.AvatarFromSeed("user")}
	}
}

// likedUser accepts a raw id or a user object.
func (n normalizer) likedUser(raw any) (domain.LikedUser, bool) {
	id, ok := domain.ResolveID(raw)
	if !ok {
		return domain.LikedUser{}, false
	}
	m, isObject := raw.(map[string]any)
	if !isObject {
		return domain.LikedUser{ID: id, Username: id, Avatar: domain.AvatarFromSeed(id)}, true
	}

	username := fallback(str(m, "username"), id)
	avatar := n.avatar(m)
	if avatar == "" {
		avatar = domain.AvatarFromSeed(username)
	}
	return domain.LikedUser{ID: id, Username: username, Name: displayName(m), Avatar: avatar}, true
}

func (n normalizer) avatar(m map[string]any) string {
	if p := str(m, "profileImage", "avatar"); p != "" {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			return p
		}
		return n.mediaURL + p
	}
	return ""
}

// --- POSTS ---

func (n normalizer) post(raw any, viewerID string) (domain.Post, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.Post{}, fmt.Errorf("%w: post is not an object", domain.ErrMalformedResponse)
	}
	id, _ := domain.ResolveID(firstOf(m, "_id", "id"))
	if id == "" {
		return domain.Post{}, fmt.Errorf("%w: post without id", domain.ErrMalformedResponse)
	}

	post := domain.Post{
		ID:        id,
		Author:    n.author(firstOf(m, "user", "author", "userId")),
		Content:   str(m, "text", "content", "caption", "description"),
		Media:     domain.BuildGallery(n.mediaURL, strs(m["videos"]), strs(m["images"])),
		Likes:     n.likes(m, viewerID),
		Comments:  []domain.Comment{},
		CreatedAt: timestamp(m, "createdAt"),
	}

	if rawComments, ok := m["comments"].([]any); ok {
		for _, rc := range rawComments {
			c, err := n.comment(rc)
			if err != nil {
				// One broken comment should not hide the post.
				continue
			}
			post.Comments = append(post.Comments, c)
		}
	}
	return post, nil
}

// likes maps either a membership list or a bare count.
func (n normalizer) likes(m map[string]any, viewerID string) domain.LikeState {
	if list, ok := m["likes"].([]any); ok {
		users := make([]domain.LikedUser, 0, len(list))
		for _, raw := range list {
			if u, ok := n.likedUser(raw); ok {
				users = append(users, u)
			}
		}
		return domain.NewTrackedLikes(users, viewerID)
	}

	count := integer(firstOf(m, "likes", "likeCount", "likesCount"))
	liked, _ := firstOf(m, "liked", "isLiked").(bool)
	return domain.NewCountOnlyLikes(count, liked)
}

func (n normalizer) comment(raw any) (domain.Comment, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.Comment{}, fmt.Errorf("%w: comment is not an object", domain.ErrMalformedResponse)
	}
	id, _ := domain.ResolveID(firstOf(m, "_id", "id"))
	if id == "" {
		return domain.Comment{}, fmt.Errorf("%w: comment without id", domain.ErrMalformedResponse)
	}
	return domain.Comment{
		ID:        id,
		Text:      str(m, "text"),
		Author:    n.author(firstOf(m, "user", "author")),
		CreatedAt: timestamp(m, "createdAt"),
	}, nil
}

// createdComment finds the new comment: {comment}, {data:{comment}} or the
// last entry of {post:{comments}}.
func (n normalizer) createdComment(raw any) (domain.Comment, error) {
	m := unwrap(raw, "data")
	if m == nil {
		return domain.Comment{}, fmt.Errorf("%w: comment response is not an object", domain.ErrMalformedResponse)
	}
	if c, ok := m["comment"]; ok {
		return n.comment(c)
	}
	if p, ok := m["post"].(map[string]any); ok {
		if list, ok := p["comments"].([]any); ok && len(list) > 0 {
			return n.comment(list[len(list)-1])
		}
	}
	return domain.Comment{}, fmt.Errorf("%w: no comment in response", domain.ErrMalformedResponse)
}

func (n normalizer) userPosts(raw any, userID, viewerID string) (posts []domain.Post, owner domain.Author, err error) {
	var list []any
	m := unwrap(raw, "data")
	switch {
	case m != nil:
		var ok bool
		if list, ok = m["posts"].([]any); !ok {
			if list, ok = m["data"].([]any); !ok {
				return nil, domain.Author{}, fmt.Errorf("%w: no posts in response", domain.ErrMalformedResponse)
			}
		}
		if u, ok := m["user"]; ok {
			owner = n.author(u)
		}
	default:
		var ok bool
		if list, ok = raw.([]any); !ok {
			return nil, domain.Author{}, fmt.Errorf("%w: posts response", domain.ErrMalformedResponse)
		}
	}

	posts = make([]domain.Post, 0, len(list))
	for _, rp := range list {
		p, err := n.post(rp, viewerID)
		if err != nil {
			return nil, domain.Author{}, err
		}
		posts = append(posts, p)
	}

	if owner.IdentityKey() == "" && len(posts) > 0 {
		owner = posts[0].Author
	}
	if owner.IdentityKey() == "" {
		owner = domain.Author{ID: userID, Username: userID, Name: userID, Avatar: domain.AvatarFromSeed(userID)}
	}
	return posts, owner, nil
}

// createdPost accepts {data:{post}}, {post} or the bare post.
func (n normalizer) createdPost(raw any, viewerID string) (domain.Post, error) {
	m := unwrap(raw, "data")
	if m == nil {
		return domain.Post{}, fmt.Errorf("%w: post response is not an object", domain.ErrMalformedResponse)
	}
	if p, ok := m["post"]; ok {
		return n.post(p, viewerID)
	}
	return n.post(m, viewerID)
}

// --- PRODUCTS ---

func (n normalizer) product(raw any) (domain.Product, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: product is not an object", domain.ErrMalformedResponse)
	}
	id, _ := domain.ResolveID(firstOf(m, "_id", "id"))
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product without id", domain.ErrMalformedResponse)
	}
	company, _ := domain.ResolveID(refID(m["company"]))
	category, _ := domain.ResolveID(refID(m["category"]))

	p := domain.Product{
		ID:         id,
		Name:       str(m, "productName", "name"),
		Image:      str(m, "productImage", "image"),
		CompanyID:  company,
		CategoryID: category,
		Material:   str(m, "materialName"),
		Details:    map[string]string{},
	}
	if v := str(m, "beboharerShubidha"); v != "" {
		p.Details["benefits"] = v
	}
	if v := str(m, "companySlug"); v != "" {
		p.Details["companySlug"] = v
	}

	crops, pests := lenientList(m["foshol"]), lenientList(m["balai"])
	dose, method := str(m, "matra"), str(m, "beboharBidhi")
	if len(crops) > 0 || len(pests) > 0 || dose != "" || method != "" {
		p.Usage = []domain.UsageRow{{Crops: crops, Pests: pests, Dose: dose, Method: method}}
	}
	return p, nil
}

func (n normalizer) products(raw any) ([]domain.Product, error) {
	list, ok := raw.([]any)
	if !ok {
		m := unwrap(raw, "")
		if m == nil {
			return nil, fmt.Errorf("%w: products response", domain.ErrMalformedResponse)
		}
		if list, ok = m["data"].([]any); !ok {
			return nil, fmt.Errorf("%w: products response", domain.ErrMalformedResponse)
		}
	}
	out := make([]domain.Product, 0, len(list))
	for _, rp := range list {
		p, err := n.product(rp)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// --- RAW HELPERS ---

// unwrap descends into the first envelope key present (e.g. "data").
func unwrap(raw any, keys ...string) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	for _, k := range keys {
		if inner, ok := m[k].(map[string]any); ok {
			m = inner
		}
	}
	return m
}

// refID accepts a populated reference ({_id: ...}) or the raw id.
func refID(raw any) any {
	if m, ok := raw.(map[string]any); ok {
		return firstOf(m, "_id", "id")
	}
	return raw
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func strs(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// lenientList accepts a JSON array or a string holding one.
func lenientList(raw any) []string {
	if s, ok := raw.(string); ok {
		var decoded []string
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil
		}
		return decoded
	}
	return strs(raw)
}

func integer(raw any) int {
	switch x := raw.(type) {
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			f, _ := x.Float64()
			return int(f)
		}
		return int(i)
	case float64:
		return int(x)
	case int:
		return x
	}
	return 0
}

func timestamp(m map[string]any, key string) time.Time {
	s, ok := m[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func displayName(m map[string]any) string {
	return str(m, "name", "fullName", "fullname")
}

func location(m map[string]any) string {
	if loc := str(m, "location"); loc != "" {
		return loc
	}
	parts := make([]string, 0, 3)
	for _, k := range []string{"district", "division", "state"} {
		if v := str(m, k); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
