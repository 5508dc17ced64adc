package security

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestSealRoundTrip(t *testing.T) {
	key, err := KeyFrom("", "secret")
	if err != nil {
		t.Fatalf("KeyFrom: %v", err)
	}
	s, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	a, _ := s.Seal("42")
	b, _ := s.Seal("42")
	if a == b {
		t.Fatal("nonce must make ciphertexts differ")
	}
	got, err := s.Open(a)
	if err != nil || got != "42" {
		t.Fatalf("Open = %q, %v", got, err)
	}

	other, _ := KeyFrom("", "another")
	s2, _ := NewSealer(other)
	if _, err := s2.Open(a); err == nil {
		t.Fatal("opening with a different key must fail")
	}
	if _, err := s.Open("AAAA"); err == nil {
		t.Fatal("short payload must fail")
	}
}

func TestKeyFromExplicitKey(t *testing.T) {
	raw := strings.Repeat("k", 32)
	key, err := KeyFrom(base64.StdEncoding.EncodeToString([]byte(raw)), "ignored")
	if err != nil || string(key) != raw {
		t.Fatalf("KeyFrom = %q, %v", key, err)
	}
	if _, err := KeyFrom(base64.StdEncoding.EncodeToString([]byte("short")), ""); err == nil {
		t.Fatal("short key must be rejected")
	}
	if _, err := KeyFrom("%%%", ""); err == nil {
		t.Fatal("invalid base64 must be rejected")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("correct horse", hash) {
		t.Fatal("valid password rejected")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatal("invalid password accepted")
	}
}
