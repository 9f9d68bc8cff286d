package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/stealthfetch/internal/database"
	"github.com/nao1215/stealthfetch/internal/model"
)

// seedHistory archives two runs in a fresh database directory and returns it.
func seedHistory(t *testing.T) (string, *model.ResultSet, *model.ResultSet) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := &model.ResultSet{
		RunID:      "run-older",
		Mode:       model.ModeFetch,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Results: []model.Result{
			{URL: "https://a.example/", StatusCode: 200, Success: true, FetchedAt: started},
			{URL: "https://b.example/", StatusCode: 200, Success: true, FetchedAt: started},
			{URL: "https://c.example/", StatusCode: 200, Success: true, FetchedAt: started},
		},
	}
	newer := &model.ResultSet{
		RunID:      "run-newer",
		Mode:       model.ModeCrawl,
		Seed:       "https://a.example/",
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour + time.Minute),
		Results: []model.Result{
			{URL: "https://a.example/", StatusCode: 200, Success: true, FetchedAt: started},
			{URL: "https://b.example/", StatusCode: 403, Blocked: true, FetchedAt: started},
			{URL: "https://d.example/", Error: "connection refused", FetchedAt: started},
		},
	}

	ctx := context.Background()
	for _, set := range []*model.ResultSet{older, newer} {
		if err := db.SaveResultSet(ctx, set); err != nil {
			t.Fatalf("failed to save %s: %v", set.RunID, err)
		}
	}
	return dir, older, newer
}

// TestHistoryCommand tests list, show and compare against an archive.
func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	dir, _, _ := seedHistory(t)

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "list", "--db-dir", dir)
		if err != nil {
			t.Fatalf("history list failed: %v", err)
		}
		for _, want := range []string{"RUN ID", "run-older", "run-newer", "crawl", "https://a.example/"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("output missing %q:\n%s", want, stdout)
			}
		}
		if strings.Index(stdout, "run-newer") > strings.Index(stdout, "run-older") {
			t.Errorf("expected newest run first:\n%s", stdout)
		}
	})

	t.Run("list empty archive", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "list", "--db-dir", t.TempDir())
		if err != nil {
			t.Fatalf("history list failed: %v", err)
		}
		if !strings.Contains(stdout, "No archived runs found.") {
			t.Errorf("unexpected output: %s", stdout)
		}
	})

	t.Run("show as json", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "show", "--db-dir", dir, "--json", "run-newer")
		if err != nil {
			t.Fatalf("history show failed: %v", err)
		}
		rep := decodeJSONReport(t, stdout)
		if rep.Run.RunID != "run-newer" || len(rep.Run.Results) != 3 {
			t.Errorf("unexpected run: id=%q results=%d", rep.Run.RunID, len(rep.Run.Results))
		}
	})

	t.Run("show unknown run", func(t *testing.T) {
		t.Parallel()
		_, _, err := runRoot(t, "history", "show", "--db-dir", dir, "no-such-run")
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("compare text", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "compare", "--db-dir", dir, "run-older", "run-newer")
		if err != nil {
			t.Fatalf("history compare failed: %v", err)
		}
		for _, want := range []string{
			"Comparing run-older -> run-newer",
			"https://b.example/: 200 -> 403 blocked",
			"Only in newer run (1):",
			"Only in older run (1):",
			"Unchanged: 1",
		} {
			if !strings.Contains(stdout, want) {
				t.Errorf("output missing %q:\n%s", want, stdout)
			}
		}
	})

	t.Run("compare json", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "compare", "--db-dir", dir, "--json", "run-older", "run-newer")
		if err != nil {
			t.Fatalf("history compare failed: %v", err)
		}
		var c RunComparison
		if err := json.Unmarshal([]byte(stdout), &c); err != nil {
			t.Fatalf("failed to parse comparison: %v", err)
		}
		if len(c.Changed) != 1 || len(c.Added) != 1 || len(c.Removed) != 1 || c.Unchanged != 1 {
			t.Errorf("unexpected comparison: %+v", c)
		}
	})
}

// TestCompareRuns tests per-URL matching between runs.
func TestCompareRuns(t *testing.T) {
	t.Parallel()

	t.Run("classifies urls", func(t *testing.T) {
		t.Parallel()
		older := &model.ResultSet{RunID: "a", Results: []model.Result{
			{URL: "https://x/2", StatusCode: 200, Success: true},
			{URL: "https://x/1", StatusCode: 200, Success: true},
			{URL: "https://x/gone", StatusCode: 404},
		}}
		newer := &model.ResultSet{RunID: "b", Results: []model.Result{
			{URL: "https://x/1", Error: "timeout"},
			{URL: "https://x/2", StatusCode: 503},
			{URL: "https://x/new", StatusCode: 200, Success: true},
		}}

		c := compareRuns(older, newer)
		if c.Older != "a" || c.Newer != "b" {
			t.Errorf("unexpected run IDs: %s %s", c.Older, c.Newer)
		}
		want := []StatusChange{
			{URL: "https://x/1", Before: "200", After: "error"},
			{URL: "https://x/2", Before: "200", After: "503"},
		}
		if len(c.Changed) != len(want) {
			t.Fatalf("got %d changes, want %d: %+v", len(c.Changed), len(want), c.Changed)
		}
		for i := range want {
			if c.Changed[i] != want[i] {
				t.Errorf("change %d = %+v, want %+v", i, c.Changed[i], want[i])
			}
		}
		if len(c.Added) != 1 || c.Added[0] != "https://x/new" {
			t.Errorf("unexpected added: %v", c.Added)
		}
		if len(c.Removed) != 1 || c.Removed[0] != "https://x/gone" {
			t.Errorf("unexpected removed: %v", c.Removed)
		}
		if c.Unchanged != 0 {
			t.Errorf("unchanged = %d, want 0", c.Unchanged)
		}
	})

	t.Run("last result for a url wins", func(t *testing.T) {
		t.Parallel()
		older := &model.ResultSet{Results: []model.Result{
			{URL: "https://x/", StatusCode: 500},
			{URL: "https://x/", StatusCode: 200, Success: true},
		}}
		newer := &model.ResultSet{Results: []model.Result{
			{URL: "https://x/", StatusCode: 200, Success: true},
		}}

		c := compareRuns(older, newer)
		if len(c.Changed) != 0 || c.Unchanged != 1 {
			t.Errorf("unexpected comparison: %+v", c)
		}
	})
}
