// Package identity resolves the authenticated actor from an inbound request.
// The actor is handed to the action layer explicitly; core packages never
// read identity from ambient state.
package identity

import "net/http"

// Actor is the authenticated identity behind a request.
type Actor struct {
	ID            int64
	Username      string
	DisplayName   string
	Email         string
	Authenticated bool
}

// Anonymous is the explicit no-identity marker used by public actions.
var Anonymous = Actor{}

// Name returns the display name, falling back to the username.
func (a Actor) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// Resolver extracts an actor from a request. Implementations return the
// anonymous actor, not an error, when their credential type is absent.
type Resolver interface {
	Resolve(r *http.Request) (Actor, error)
}

// Chain tries each resolver in order and returns the first authenticated
// actor.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(r *http.Request) (Actor, error) {
	for _, resolver := range c {
		actor, err := resolver.Resolve(r)
		if err != nil {
			return Anonymous, err
		}
		if actor.Authenticated {
			return actor, nil
		}
	}
	return Anonymous, nil
}
