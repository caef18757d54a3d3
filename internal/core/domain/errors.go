package domain

import "errors"

// --- DOMAIN ERRORS ---
var (
	ErrPostNotFound      = errors.New("post not found")
	ErrCommentNotFound   = errors.New("comment not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrProfileNotFound   = errors.New("profile user not found")
	ErrEmptyComment      = errors.New("comment text is required")
	ErrEmptyPost         = errors.New("post needs text or media")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrRemote            = errors.New("upstream request failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrSessionNotFound   = errors.New("profile session not opened")
)
