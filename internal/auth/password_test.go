package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("rahasia123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "rahasia123" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword(hash, "rahasia123") {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword(hash, "salah") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestBurnCompareDoesNotPanic(t *testing.T) {
	BurnCompare("anything")
}
