package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/adapter"
)

// ===== Bearer JWT primitives =====

type AuthConfig struct {
	HMACSecret []byte
	Issuer     string
	TTL        time.Duration
}

type AuthManager struct{ cfg AuthConfig }

func NewAuthManager(secret, issuer string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthManager{cfg: AuthConfig{
		HMACSecret: []byte(secret),
		Issuer:     issuer,
		TTL:        ttl,
	}}
}

// Claims identify the caller: Subject is the user id, Role one of
// USER, PROVIDER or ADMIN.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Mint signs a token for userID. Used by the seed tool and tests; production
// tokens come from the identity provider sharing the secret.
func (a *AuthManager) Mint(userID string, role model.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.cfg.HMACSecret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*Claims, error) {
	// Authorization: Bearer <jwt>
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return nil, errors.New("missing token")
	}
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("malformed authorization header")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Principal turns verified claims into a principal. An unknown role is
// rejected rather than downgraded.
func (c *Claims) Principal() (model.Principal, error) {
	role := model.Role(strings.ToUpper(strings.TrimSpace(c.Role)))
	switch role {
	case "":
		role = model.RoleUser
	case model.RoleUser, model.RoleProvider, model.RoleAdmin:
	default:
		return model.Principal{}, domain.ErrUnauthenticated
	}
	return model.Principal{UserID: c.Subject, Role: role}, nil
}

// ===== Principal in context =====

type principalKey struct{}

func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// ContextPrincipalResolver reads the principal the auth middleware stored
// in the request context.
type ContextPrincipalResolver struct{}

var _ adapter.PrincipalResolver = ContextPrincipalResolver{}

func (ContextPrincipalResolver) CurrentPrincipal(ctx context.Context) (model.Principal, error) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	if !ok || p.IsZero() {
		return model.Principal{}, domain.ErrUnauthenticated
	}
	return p, nil
}
