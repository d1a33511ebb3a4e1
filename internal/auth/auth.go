package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stackit-dev/stackit/internal/config"
	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/store"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownUser  = errors.New("token subject no longer exists")
)

// Service issues and verifies HS256 bearer tokens whose subject is the
// numeric user id.
type Service struct {
	users    store.UserStore
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time
}

// Verified is the identity carried by an accepted token.
type Verified struct {
	UserID   int64
	Username string
	Role     model.Role
}

func (v Verified) IsAdmin() bool {
	return v.Role == model.RoleAdmin
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type claims struct {
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

func NewService(users store.UserStore, cfg config.Auth) *Service {
	return &Service{
		users:    users,
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
		now:      time.Now,
	}
}

func (s *Service) Issue(user model.User) (Token, error) {
	now := s.now()
	expires := now.Add(s.tokenTTL)
	c := claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Token: signed, ExpiresAt: expires.UTC()}, nil
}

// Authenticate verifies bearer and confirms its subject still exists. The
// role is taken from the store, not the token.
func (s *Service) Authenticate(ctx context.Context, bearer string) (Verified, error) {
	var c claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	_, err := jwt.ParseWithClaims(bearer, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return Verified{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Verified{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Verified{}, ErrUnknownUser
	}
	if err != nil {
		return Verified{}, err
	}
	return Verified{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}
