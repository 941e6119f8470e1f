package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	relay_errors "newsletter-relay/pkg/errors"
)

type contextKey string

const actorIDKey contextKey = "actor_id"

// AccessClaims identifies the admin acting on the API. Subject is the
// actor id.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// AuthService verifies bearer tokens issued by the admin login flow.
// Sessions and password handling live outside this service.
type AuthService struct {
	jwtSecret []byte
	accessTTL time.Duration
	clock     func() time.Time
}

func NewAuthService(secret string, accessTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		accessTTL: accessTTL,
		clock:     time.Now,
	}
}

// IssueAccessToken signs a token for actorID. It backs local tooling and
// tests; production tokens come from the same secret.
func (s *AuthService) IssueAccessToken(actorID uuid.UUID) (string, error) {
	now := s.clock()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ParseAccessToken validates tokenString and returns the actor it names.
func (s *AuthService) ParseAccessToken(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, relay_errors.ErrUnauthorized
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, relay_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock))
	if err != nil {
		return uuid.Nil, errors.Join(relay_errors.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, relay_errors.ErrUnauthorized
	}
	actorID, err := uuid.Parse(claims.Subject)
	if err != nil || actorID == uuid.Nil {
		return uuid.Nil, relay_errors.ErrUnauthorized
	}
	return actorID, nil
}

func WithActorContext(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

func ActorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	actorID, ok := ctx.Value(actorIDKey).(uuid.UUID)
	return actorID, ok
}
