package fetch

import (
	"context"
	"errors"
	"strings"
)

// ErrNoToken is returned by providers that have no usable token.
var ErrNoToken = errors.New("no access token")

// TokenProvider supplies the current bearer token. Refreshing tokens is the
// provider's concern; the client only reads them.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

type tokenKey struct{}

// WithToken attaches a request-scoped token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// ContextTokenProvider reads the token attached by WithToken, falling back
// to Fallback when none is present.
type ContextTokenProvider struct {
	Fallback TokenProvider
}

func (p ContextTokenProvider) Token(ctx context.Context) (string, error) {
	if token, ok := ctx.Value(tokenKey{}).(string); ok && strings.TrimSpace(token) != "" {
		return token, nil
	}
	if p.Fallback != nil {
		return p.Fallback.Token(ctx)
	}
	return "", ErrNoToken
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
