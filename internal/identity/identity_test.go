package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	hash, err := HashPassphrase("poulet")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return NewService(Config{
		Secret:         []byte("test-secret"),
		PassphraseHash: hash,
		TokenTTL:       ttl,
	})
}

func TestLoginVerifyRoundTrip(t *testing.T) {
	svc := testService(t, time.Hour)

	token, err := svc.Login("marie", "poulet")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	got, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != "marie" {
		t.Errorf("user id = %q, want marie", got)
	}
}

func TestLoginRejectsWrongPassphrase(t *testing.T) {
	svc := testService(t, time.Hour)
	if _, err := svc.Login("marie", "canard"); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("err = %v, want ErrBadPassphrase", err)
	}
}

func TestLoginRejectsBadUserIDs(t *testing.T) {
	svc := testService(t, time.Hour)
	for _, id := range []string{"", "   ", "a/b", "a b", "a\\b"} {
		if _, err := svc.Login(id, "poulet"); !errors.Is(err, ErrBadUserID) {
			t.Errorf("Login(%q) err = %v, want ErrBadUserID", id, err)
		}
	}
}

func TestLoginTrimsUserID(t *testing.T) {
	svc := testService(t, time.Hour)
	token, err := svc.Login("  marie  ", "poulet")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	got, _ := svc.Verify(token)
	if got != "marie" {
		t.Errorf("user id = %q, want marie", got)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := testService(t, -time.Minute)
	token, err := svc.Login("marie", "poulet")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("err = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := testService(t, time.Hour)

	if _, err := svc.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("empty token: err = %v, want ErrMissingToken", err)
	}
	if _, err := svc.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: err = %v, want ErrInvalidToken", err)
	}

	// Token signed with a different secret.
	other := NewService(Config{Secret: []byte("other"), PassphraseHash: string(mustHash(t, "poulet"))})
	token, err := other.Login("marie", "poulet")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token: err = %v, want ErrInvalidToken", err)
	}
}

func mustHash(t *testing.T, passphrase string) []byte {
	t.Helper()
	hash, err := HashPassphrase(passphrase)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return []byte(hash)
}

func TestMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrBadPassphrase, "Phrase secrète incorrecte."},
		{ErrExpiredToken, "Session expirée, veuillez vous reconnecter."},
		{ErrMissingToken, "Connexion requise."},
		{errors.New("boom"), "Une erreur est survenue."},
	}
	for _, tc := range cases {
		if got := Message(tc.err); got != tc.want {
			t.Errorf("Message(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if id := UserID(ctx); id != "" {
		t.Errorf("unauthenticated UserID = %q, want empty", id)
	}
	if _, ok := FromContext(ctx); ok {
		t.Error("FromContext on empty context reported ok")
	}

	ctx = WithUser(ctx, "marie")
	if id := UserID(ctx); id != "marie" {
		t.Errorf("UserID = %q, want marie", id)
	}
}
