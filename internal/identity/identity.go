// Package identity is the authentication boundary: a shared passphrase is
// exchanged for a signed token, and the token yields a stable user id that
// keys the membership collection.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadUserID     = errors.New("identity: invalid user id")
	ErrBadPassphrase = errors.New("identity: wrong passphrase")
	ErrMissingToken  = errors.New("identity: missing token")
	ErrExpiredToken  = errors.New("identity: expired token")
	ErrInvalidToken  = errors.New("identity: invalid token")
)

// Message maps an authentication failure to the sentence shown to the user.
// This is the one place in the application where errors become prose.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrBadUserID):
		return "Identifiant invalide."
	case errors.Is(err, ErrBadPassphrase):
		return "Phrase secrète incorrecte."
	case errors.Is(err, ErrMissingToken):
		return "Connexion requise."
	case errors.Is(err, ErrExpiredToken):
		return "Session expirée, veuillez vous reconnecter."
	case errors.Is(err, ErrInvalidToken):
		return "Jeton d'authentification invalide."
	default:
		return "Une erreur est survenue."
	}
}

const defaultTokenTTL = 30 * 24 * time.Hour

// Config holds the signing secret and the bcrypt hash of the shared
// passphrase. TokenTTL defaults to thirty days.
type Config struct {
	Secret         []byte
	PassphraseHash string
	TokenTTL       time.Duration
}

// Service issues and verifies HS256 tokens.
type Service struct {
	secret []byte
	hash   []byte
	ttl    time.Duration
}

func NewService(cfg Config) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{
		secret: cfg.Secret,
		hash:   []byte(cfg.PassphraseHash),
		ttl:    ttl,
	}
}

// Login checks the passphrase and returns a token whose subject is the
// given user id. The id becomes part of document keys, so slashes and
// whitespace are rejected.
func (s *Service) Login(userID, passphrase string) (string, error) {
	userID = strings.TrimSpace(userID)
	if !validUserID(userID) {
		return "", ErrBadUserID
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(passphrase)); err != nil {
		return "", ErrBadPassphrase
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a token and returns its user id.
func (s *Service) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// HashPassphrase produces the bcrypt hash the daemon is configured with.
func HashPassphrase(passphrase string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func validUserID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	return !strings.ContainsAny(id, "/\\ \t\n")
}
