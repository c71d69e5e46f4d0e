package identity

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// Credential is one basic-auth account with a bcrypt password hash.
type Credential struct {
	ActorID      int64
	DisplayName  string
	Email        string
	PasswordHash string
}

// BasicResolver authenticates HTTP basic credentials against a static
// account table.
type BasicResolver struct {
	accounts map[string]Credential
}

// NewBasicResolver creates a resolver over the given accounts, keyed by
// username.
func NewBasicResolver(accounts map[string]Credential) *BasicResolver {
	return &BasicResolver{accounts: accounts}
}

// Resolve implements Resolver. Requests without basic credentials resolve to
// the anonymous actor; wrong credentials are an error.
func (b *BasicResolver) Resolve(r *http.Request) (Actor, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return Anonymous, nil
	}

	account, found := b.accounts[username]
	if !found {
		return Anonymous, fmt.Errorf("unknown user %s", username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Anonymous, fmt.Errorf("invalid credentials for %s", username)
	}

	return Actor{
		ID:            account.ActorID,
		Username:      username,
		DisplayName:   account.DisplayName,
		Email:         account.Email,
		Authenticated: true,
	}, nil
}
