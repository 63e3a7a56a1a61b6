package auth

import (
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if !strings.HasPrefix(token, "btw-sess-") {
		t.Errorf("token should start with 'btw-sess-', got: %s", token)
	}

	// btw-sess- is 9 chars, plus 40 random = 49 total
	if len(token) != 49 {
		t.Errorf("expected token length 49, got %d: %s", len(token), token)
	}

	// Ensure randomness: two tokens should differ
	token2, _ := GenerateToken()
	if token == token2 {
		t.Error("two generated tokens should not be identical")
	}
}

func TestHashToken(t *testing.T) {
	token := "btw-sess-abcdefghijklmnopqrstuvwxyz01234567890123"
	hash := HashToken(token)

	// SHA-256 produces 64-char hex string
	if len(hash) != 64 {
		t.Errorf("expected hash length 64, got %d", len(hash))
	}

	// Same input should produce same hash
	hash2 := HashToken(token)
	if hash != hash2 {
		t.Error("same token should produce same hash")
	}

	// Different input should produce different hash
	hash3 := HashToken("btw-sess-different")
	if hash == hash3 {
		t.Error("different tokens should produce different hashes")
	}
}

func TestTokenPrefix(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"btw-sess-abcdefghijklmnopqrstuvwxyz01234567890123", "btw-sess-abcdefgh..."},
		{"short", "short"},
	}

	for _, tt := range tests {
		if got := TokenPrefix(tt.token); got != tt.expected {
			t.Errorf("TokenPrefix(%q) = %q, want %q", tt.token, got, tt.expected)
		}
	}
}
