// Package session carries the authenticated caller explicitly through
// request handling instead of relying on ambient state.
package session

import "context"

// Session identifies the user behind a request
type Session struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	Token    string `json:"-"`
}

// Authenticated reports whether s carries a user
func (s Session) Authenticated() bool {
	return s.UserID > 0
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying s
func WithContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx, if any
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}
