package service

import "context"

// StaticTokens serves one shared bearer credential for every user.
// Useful for single-tenant deployments and tests; an empty token means
// everyone is a guest.
type StaticTokens struct {
	Bearer string
}

func (s StaticTokens) Token(_ context.Context, _ string) (string, bool) {
	if s.Bearer == "" {
		return "", false
	}
	return s.Bearer, true
}
