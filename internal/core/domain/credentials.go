package domain

import "context"

// Private context key (avoids collisions)
type contextKey struct{ name string }

var accessTokenKey = &contextKey{"access_token"}

// WithAccessToken attaches the viewer's bearer token to outgoing upstream calls.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessToken returns the token set by WithAccessToken, or "".
func AccessToken(ctx context.Context) string {
	raw, _ := ctx.Value(accessTokenKey).(string)
	return raw
}
