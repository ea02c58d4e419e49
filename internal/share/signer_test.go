package share

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSignerRoundTrip(t *testing.T) {
	signer, err := NewSigner(SignerConfig{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	id := uuid.New()
	token, expiresAt, err := signer.Mint(id)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("token already expired")
	}

	got, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != id {
		t.Fatalf("Verify returned %s, want %s", got, id)
	}
}

func TestSignerRejectsExpired(t *testing.T) {
	current := time.Now().Add(-48 * time.Hour)
	signer, err := NewSigner(SignerConfig{
		Secret: "test-secret",
		TTL:    time.Hour,
		Now:    func() time.Time { return current },
	})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	token, _, err := signer.Mint(uuid.New())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	current = time.Now()
	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestSignerRejectsForeignSecret(t *testing.T) {
	a, err := NewSigner(SignerConfig{Secret: "secret-a"})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	b, err := NewSigner(SignerConfig{Secret: "secret-b"})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	token, _, err := a.Mint(uuid.New())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestSignerRejectsGarbage(t *testing.T) {
	signer, err := NewSigner(SignerConfig{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := signer.Verify(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q) err = %v, want ErrInvalidToken", raw, err)
		}
	}
}
