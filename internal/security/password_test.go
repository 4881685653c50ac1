package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_RoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.HashPassword("rahasia123")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	if hash == "rahasia123" {
		t.Fatalf("hash must not equal the plain password")
	}

	if err := h.CheckPassword(hash, "rahasia123"); err != nil {
		t.Fatalf("CheckPassword with correct password: %v", err)
	}

	err = h.CheckPassword(hash, "wrong")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestHasher_SaltsEachHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	a, _ := h.HashPassword("same")
	b, _ := h.HashPassword("same")

	if a == b {
		t.Fatalf("expected different hashes for the same password")
	}
}

func TestNewHasher_OutOfRangeCostFallsBack(t *testing.T) {
	h := NewHasher(99)
	if h.cost != DefaultCost {
		t.Fatalf("expected cost %d, got %d", DefaultCost, h.cost)
	}

	hash, err := h.HashPassword("x")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil || cost != DefaultCost {
		t.Fatalf("expected stored cost %d, got %d (%v)", DefaultCost, cost, err)
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	err := h.CheckPassword("not-a-bcrypt-hash", "x")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected a non-mismatch error, got %v", err)
	}
}
