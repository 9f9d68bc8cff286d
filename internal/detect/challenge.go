package detect

import (
	"regexp"

	"github.com/nao1215/stealthfetch/internal/model"
)

// challengePattern names one hidden form field scraped from a challenge page.
type challengePattern struct {
	name    string
	pattern *regexp.Regexp
}

// challengePatterns match the hidden inputs of the legacy Cloudflare
// JavaScript challenge form. Attribute order matters; this is a best-effort
// text scrape, not a solver.
var challengePatterns = []challengePattern{
	{name: "jschl_vc", pattern: regexp.MustCompile(`name="jschl_vc" value="([^"]+)"`)},
	{name: "pass", pattern: regexp.MustCompile(`name="pass" value="([^"]+)"`)},
	{name: "jschl_answer", pattern: regexp.MustCompile(`name="jschl_answer" value="([^"]+)"`)},
}

// ExtractChallenge returns the challenge tokens found in html, keyed by field
// name. It returns nil when no token is present.
func ExtractChallenge(html string) map[string]string {
	var tokens map[string]string
	for _, p := range challengePatterns {
		m := p.pattern.FindStringSubmatch(html)
		if len(m) < 2 {
			continue
		}
		if tokens == nil {
			tokens = make(map[string]string, len(challengePatterns))
		}
		tokens[p.name] = m[1]
	}
	return tokens
}

// ChallengeHook fills resp.Challenge from the response body.
// It has the signature of a session response hook.
func ChallengeHook(resp *model.Response) {
	if resp == nil || !resp.IsHTML() {
		return
	}
	if tokens := ExtractChallenge(resp.Text()); tokens != nil {
		resp.Challenge = tokens
	}
}
