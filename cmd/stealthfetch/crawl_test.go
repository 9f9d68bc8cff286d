package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/nao1215/stealthfetch/internal/model"
)

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	if cmd.Use != "crawl <seed-url>" {
		t.Errorf("unexpected Use: got %q", cmd.Use)
	}
	flag := cmd.Flags().Lookup("max-pages")
	if flag == nil {
		t.Fatal("expected max-pages flag")
	}
	if flag.Shorthand != "p" {
		t.Errorf("expected shorthand 'p', got %q", flag.Shorthand)
	}
	if cmd.Flags().Lookup("robots") == nil {
		t.Error("expected robots flag")
	}
	if cmd.Flags().Lookup("workers") != nil {
		t.Error("workers belongs to fetch only")
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("expected crawl to require a seed")
	}
}

func TestCrawlCommand(t *testing.T) {
	t.Parallel()

	t.Run("crawls same-host links in order", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestSite(t)
		cfgPath := writeConfig(t, "defaults: {}\n")

		args := append([]string{"crawl", "-c", cfgPath, "--json"}, fastFlags...)
		stdout, stderr, err := runRoot(t, append(args, srv.URL)...)
		if err != nil {
			t.Fatalf("crawl failed: %v\nstderr: %s", err, stderr)
		}

		rep := decodeJSONReport(t, stdout)
		if rep.Run.Mode != model.ModeCrawl || rep.Run.Seed != srv.URL {
			t.Errorf("unexpected run metadata: mode=%q seed=%q", rep.Run.Mode, rep.Run.Seed)
		}
		want := []string{srv.URL + "/", srv.URL + "/about", srv.URL + "/missing"}
		if len(rep.Run.Results) != len(want) {
			t.Fatalf("got %d results, want %d: %+v", len(rep.Run.Results), len(want), rep.Run.Results)
		}
		for i, u := range want {
			if rep.Run.Results[i].URL != u {
				t.Errorf("result %d = %q, want %q", i, rep.Run.Results[i].URL, u)
			}
		}
		if rep.Run.Results[2].StatusCode != http.StatusNotFound {
			t.Errorf("expected /missing to be recorded as 404, got %+v", rep.Run.Results[2])
		}
	})

	t.Run("max pages flag", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestSite(t)
		cfgPath := writeConfig(t, "defaults: {}\n")

		args := append([]string{"crawl", "-c", cfgPath, "--json", "-p", "2"}, fastFlags...)
		stdout, _, err := runRoot(t, append(args, srv.URL)...)
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if got := len(decodeJSONReport(t, stdout).Run.Results); got != 2 {
			t.Errorf("got %d results, want 2", got)
		}
	})

	t.Run("site config limits and filters", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestSite(t)
		u, err := url.Parse(srv.URL)
		if err != nil {
			t.Fatal(err)
		}
		cfgPath := writeConfig(t, "sites:\n  \""+u.Host+"\":\n    maxPages: 5\n    ignorePatterns:\n      - \"/missing\"\n")

		args := append([]string{"crawl", "-c", cfgPath, "--json"}, fastFlags...)
		stdout, _, err := runRoot(t, append(args, srv.URL)...)
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		results := decodeJSONReport(t, stdout).Run.Results
		if len(results) != 2 {
			t.Fatalf("got %d results, want 2: %+v", len(results), results)
		}
		for _, r := range results {
			if r.URL == srv.URL+"/missing" {
				t.Error("ignored path was crawled")
			}
		}
	})

	t.Run("honors robots.txt", func(t *testing.T) {
		t.Parallel()
		mux := http.NewServeMux()
		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		})
		mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><a href="/private">p</a><a href="/public">q</a></body></html>`))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()
		cfgPath := writeConfig(t, "defaults: {}\n")

		args := append([]string{"crawl", "-c", cfgPath, "--json", "--robots", "-p", "10"}, fastFlags...)
		stdout, _, err := runRoot(t, append(args, srv.URL)...)
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		byURL := resultsByURL(decodeJSONReport(t, stdout).Run.Results)
		if _, ok := byURL[srv.URL+"/private"]; ok {
			t.Error("disallowed path was crawled")
		}
		if _, ok := byURL[srv.URL+"/public"]; !ok {
			t.Error("allowed path was not crawled")
		}
	})

	t.Run("rejects invalid seed", func(t *testing.T) {
		t.Parallel()
		cfgPath := writeConfig(t, "defaults: {}\n")

		if _, _, err := runRoot(t, "crawl", "-c", cfgPath, "not a url"); err == nil {
			t.Error("expected error for invalid seed")
		}
	})
}
