package identity

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload issued for API clients.
type Claims struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	ActorID     int64  `json:"actor_id"`
	jwt.RegisteredClaims
}

// JWTResolver authenticates bearer tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver for tokens signed with secret.
func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

// Resolve implements Resolver. Requests without a bearer header resolve to
// the anonymous actor; a malformed or badly signed token is an error.
func (j *JWTResolver) Resolve(r *http.Request) (Actor, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return Anonymous, nil
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return Anonymous, fmt.Errorf("invalid bearer token: %w", err)
	}
	if !token.Valid {
		return Anonymous, fmt.Errorf("invalid bearer token")
	}

	return Actor{
		ID:            claims.ActorID,
		Username:      claims.Username,
		DisplayName:   claims.DisplayName,
		Email:         claims.Email,
		Authenticated: true,
	}, nil
}
