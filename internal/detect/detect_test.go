package detect

import (
	"net/http"
	"testing"

	"github.com/nao1215/stealthfetch/internal/model"
)

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"403", 403, "", true},
		{"429", 429, "ok", true},
		{"503", 503, "maintenance", true},
		{"plain 200", 200, "<html>welcome</html>", false},
		{"404 without indicator", 404, "not found", false},
		{"access denied mixed case", 200, "<h1>Access Denied</h1>", true},
		{"captcha", 200, "please solve the CAPTCHA", true},
		{"cloudflare marker", 200, `<div id="cf-browser-verification">`, true},
		{"rate limit", 200, "Rate Limit exceeded", true},
		{"too many requests text", 200, "Too Many Requests", true},
		{"security check", 200, "One more SECURITY CHECK", true},
		{"blocked", 500, "you have been blocked", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.IsBlocked(tt.status, tt.body); got != tt.want {
				t.Errorf("IsBlocked(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestClassifierOptions(t *testing.T) {
	t.Parallel()

	t.Run("custom statuses", func(t *testing.T) {
		t.Parallel()
		c := NewClassifier(WithStatuses(418))
		if !c.IsBlocked(418, "") {
			t.Error("418 should be blocked")
		}
		if c.IsBlocked(403, "") {
			t.Error("403 should not be blocked after replacement")
		}
	})

	t.Run("replaced indicators", func(t *testing.T) {
		t.Parallel()
		c := NewClassifier(WithIndicators("Queue-It"))
		if !c.IsBlocked(200, "you are now in the queue-it waiting room") {
			t.Error("replacement indicator not matched")
		}
		if c.IsBlocked(200, "captcha") {
			t.Error("default indicators should be replaced")
		}
	})

	t.Run("extra indicators are lowercased", func(t *testing.T) {
		t.Parallel()
		c := NewClassifier(WithExtraIndicators("Verify You Are Human"))
		if !c.IsBlocked(200, "please verify you are human") {
			t.Error("extra indicator not matched")
		}
		if !c.IsBlocked(200, "captcha") {
			t.Error("default indicators should remain")
		}
	})

	t.Run("reason names the match", func(t *testing.T) {
		t.Parallel()
		reason, ok := NewClassifier().Reason(200, "Access Denied")
		if !ok || reason != "access denied" {
			t.Errorf("Reason() = %q, %v", reason, ok)
		}
	})

	t.Run("zero value blocks nothing", func(t *testing.T) {
		t.Parallel()
		var c Classifier
		if c.IsBlocked(403, "captcha") {
			t.Error("zero Classifier should block nothing")
		}
	})
}

func TestExtractChallenge(t *testing.T) {
	t.Parallel()

	page := `<form id="challenge-form">
<input type="hidden" name="jschl_vc" value="abc123"/>
<input type="hidden" name="pass" value="1700000000.123-xyz"/>
<input type="hidden" name="jschl_answer" value="42"/>
</form>`

	tokens := ExtractChallenge(page)
	want := map[string]string{"jschl_vc": "abc123", "pass": "1700000000.123-xyz", "jschl_answer": "42"}
	for k, v := range want {
		if tokens[k] != v {
			t.Errorf("%s = %q, want %q", k, tokens[k], v)
		}
	}

	if ExtractChallenge("<html>nothing here</html>") != nil {
		t.Error("expected nil for page without tokens")
	}
}

func TestChallengeHook(t *testing.T) {
	t.Parallel()

	resp := &model.Response{
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte(`<input name="jschl_vc" value="v1">`),
	}
	ChallengeHook(resp)
	if resp.Challenge["jschl_vc"] != "v1" {
		t.Errorf("Challenge = %v", resp.Challenge)
	}

	jsonResp := &model.Response{
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"x":"name=\"jschl_vc\" value=\"v1\""}`),
	}
	ChallengeHook(jsonResp)
	if jsonResp.Challenge != nil {
		t.Error("hook should skip non-HTML responses")
	}
}
