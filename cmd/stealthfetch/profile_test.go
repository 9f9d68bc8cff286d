package main

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nao1215/stealthfetch/internal/identity"
)

// decodeProfiles parses the profile command output.
func decodeProfiles(t *testing.T, data string) []map[string]any {
	t.Helper()
	var out []map[string]any
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		t.Fatalf("failed to parse profile output: %v\n%s", err, data)
	}
	return out
}

// TestProfileCommand tests the profile command.
func TestProfileCommand(t *testing.T) {
	t.Parallel()

	t.Run("prints one profile by default", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "profile")
		if err != nil {
			t.Fatalf("profile failed: %v", err)
		}
		profiles := decodeProfiles(t, stdout)
		if len(profiles) != 1 {
			t.Fatalf("got %d profiles, want 1", len(profiles))
		}
		if ua, _ := profiles[0]["user_agent"].(string); ua == "" {
			t.Error("expected a user agent")
		}
		if _, ok := profiles[0]["headers"]; ok {
			t.Error("headers should be omitted without --headers")
		}
	})

	t.Run("same seed gives same profiles", func(t *testing.T) {
		t.Parallel()
		first, _, err := runRoot(t, "profile", "--seed", "42", "-n", "5")
		if err != nil {
			t.Fatalf("profile failed: %v", err)
		}
		second, _, err := runRoot(t, "profile", "--seed", "42", "-n", "5")
		if err != nil {
			t.Fatalf("profile failed: %v", err)
		}
		if first != second {
			t.Errorf("seeded output differs:\n%s\n---\n%s", first, second)
		}
		if got := len(decodeProfiles(t, first)); got != 5 {
			t.Errorf("got %d profiles, want 5", got)
		}
	})

	t.Run("family filter and headers", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "profile", "--family", "firefox", "-n", "3", "--headers")
		if err != nil {
			t.Fatalf("profile failed: %v", err)
		}
		for i, p := range decodeProfiles(t, stdout) {
			if p["family"] != "firefox" {
				t.Errorf("profile %d family = %v, want firefox", i, p["family"])
			}
			if _, ok := p["client_hints"]; ok {
				t.Errorf("profile %d: firefox must not carry client hints", i)
			}
			headers, ok := p["headers"].(map[string]any)
			if !ok {
				t.Fatalf("profile %d: expected headers object", i)
			}
			if _, ok := headers["User-Agent"]; !ok {
				t.Errorf("profile %d: headers missing User-Agent", i)
			}
		}
	})

	t.Run("unknown family", func(t *testing.T) {
		t.Parallel()
		_, _, err := runRoot(t, "profile", "--family", "netscape")
		if !errors.Is(err, identity.ErrUnknownFamily) {
			t.Errorf("expected ErrUnknownFamily, got %v", err)
		}
	})

	t.Run("count must be positive", func(t *testing.T) {
		t.Parallel()
		if _, _, err := runRoot(t, "profile", "-n", "0"); err == nil {
			t.Error("expected error for zero count")
		}
	})
}
