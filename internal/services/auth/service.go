package auth

import (
	"context"
	"strings"

	"github.com/storycraft/billing/internal/domain/errs"
)

type TokenParser interface {
	ParseAccessToken(raw string) (AccessClaims, error)
}

// Resolver turns a bearer token into the caller's identity.
type Resolver struct {
	parser TokenParser
}

func NewResolver(parser TokenParser) *Resolver {
	return &Resolver{parser: parser}
}

func (r *Resolver) Resolve(_ context.Context, bearer string) (Identity, error) {
	if r == nil || r.parser == nil {
		return Identity{}, errs.ErrAuthRequired
	}
	token := strings.TrimSpace(bearer)
	if token == "" {
		return Identity{}, errs.ErrAuthRequired
	}

	claims, err := r.parser.ParseAccessToken(token)
	if err != nil {
		return Identity{}, err
	}

	return Identity{UserID: claims.UserID}, nil
}
