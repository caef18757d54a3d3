package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

var (
	_ ports.SocialAPI  = (*Client)(nil)
	_ ports.CatalogAPI = (*Client)(nil)
)

// Client talks to the upstream REST backend. The bearer token is read from
// the request context, so one Client serves every session.
type Client struct {
	baseURL string
	http    *http.Client
	norm    normalizer
}

func NewClient(baseURL, mediaURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		norm: normalizer{mediaURL: mediaURL},
	}
}

// --- SOCIAL ---

func (c *Client) FetchMe(ctx context.Context) (domain.Viewer, error) {
	raw, err := c.do(ctx, http.MethodGet, "/auth/me", nil, "")
	if err != nil {
		return domain.Viewer{}, err
	}
	return c.norm.viewer(raw)
}

func (c *Client) FetchUserPosts(ctx context.Context, userID, viewerID string) (*ports.UserPosts, error) {
	raw, err := c.do(ctx, http.MethodGet, "/posts/user/"+url.PathEscape(userID), nil, "")
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	posts, owner, err := c.norm.userPosts(raw, userID, viewerID)
	if err != nil {
		return nil, err
	}
	return &ports.UserPosts{Owner: owner, Posts: posts}, nil
}

func (c *Client) LikePost(ctx context.Context, postID string) error {
	_, err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/like", nil, "")
	if isNotFound(err) {
		return domain.ErrPostNotFound
	}
	return err
}

func (c *Client) CommentOnPost(ctx context.Context, postID, text string) (domain.Comment, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return domain.Comment{}, fmt.Errorf("marshal comment: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comment", bytes.NewReader(body), "application/json")
	if err != nil {
		if isNotFound(err) {
			return domain.Comment{}, domain.ErrPostNotFound
		}
		return domain.Comment{}, err
	}
	return c.norm.createdComment(raw)
}

func (c *Client) DeleteComment(ctx context.Context, postID, commentID string) error {
	path := "/posts/" + url.PathEscape(postID) + "/comment/" + url.PathEscape(commentID)
	_, err := c.do(ctx, http.MethodDelete, path, nil, "")
	if isNotFound(err) {
		return domain.ErrCommentNotFound
	}
	return err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID), nil, "")
	if isNotFound(err) {
		return domain.ErrPostNotFound
	}
	return err
}

// CreatePost uploads the post as multipart/form-data (text, images, videos).
func (c *Client) CreatePost(ctx context.Context, payload domain.NewPost) (domain.Post, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("text", payload.Text); err != nil {
		return domain.Post{}, fmt.Errorf("write text field: %w", err)
	}
	parts := []struct {
		field string
		files []domain.Upload
	}{{"images", payload.Images}, {"videos", payload.Videos}}
	for _, p := range parts {
		field := p.field
		for _, f := range p.files {
			part, err := w.CreateFormFile(field, f.Filename)
			if err != nil {
				return domain.Post{}, fmt.Errorf("create %s part: %w", field, err)
			}
			if _, err := part.Write(f.Data); err != nil {
				return domain.Post{}, fmt.Errorf("write %s part: %w", field, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return domain.Post{}, fmt.Errorf("close multipart: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/posts", &buf, w.FormDataContentType())
	if err != nil {
		return domain.Post{}, err
	}
	return c.norm.createdPost(raw, "")
}

// --- CATALOG ---

func (c *Client) FetchProduct(ctx context.Context, productID string) (domain.Product, error) {
	raw, err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(productID), nil, "")
	if err != nil {
		if isNotFound(err) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, err
	}
	if m := unwrap(raw, "data"); m != nil {
		if p, ok := m["product"]; ok {
			return c.norm.product(p)
		}
		return c.norm.product(m)
	}
	return domain.Product{}, fmt.Errorf("%w: product response", domain.ErrMalformedResponse)
}

func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	raw, err := c.do(ctx, http.MethodGet, "/products", nil, "")
	if err != nil {
		return nil, err
	}
	return c.norm.products(raw)
}

// --- TRANSPORT ---

// statusError is an upstream non-2xx answer.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.status, e.body)
}

func (e *statusError) Unwrap() error { return domain.ErrRemote }

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := domain.AccessToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrRemote, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrRemote, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.ErrUnauthorized
	case resp.StatusCode >= 300:
		slog.Debug("Upstream rejected request", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrMalformedResponse, method, path, err)
	}
	return raw, nil
}
