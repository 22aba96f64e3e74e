package conformance

import "testing"

func TestGithubRepoSlug(t *testing.T) {
	tests := []struct {
		url      string
		wantSlug string
		wantOK   bool
	}{
		{"https://github.com/acme/widget", "acme/widget", true},
		{"git@github.com:acme/widget.git", "acme/widget", true},
		{"https://gitlab.com/acme/widget", "", false},
	}
	for _, tt := range tests {
		slug, ok := githubRepoSlug(tt.url)
		if ok != tt.wantOK || (ok && slug != tt.wantSlug) {
			t.Errorf("githubRepoSlug(%q) = (%q, %v), want (%q, %v)", tt.url, slug, ok, tt.wantSlug, tt.wantOK)
		}
	}
}

func TestSanitizeForFS(t *testing.T) {
	got := sanitizeForFS("acme/widget@1.2.3")
	want := "acme_widget_1_2_3"
	if got != want {
		t.Errorf("sanitizeForFS() = %q, want %q", got, want)
	}
}

func TestSelectCandidates_FiltersVendoredAndOnlyIDs(t *testing.T) {
	items := []Candidate{
		{ID: "alpha", Status: "unvendored"},
		{ID: "beta", Status: "vendored"},
		{ID: "gamma", Status: "unvendored"},
	}

	selected := selectCandidates(items, RunConfig{})
	if len(selected) != 2 {
		t.Fatalf("expected 2 unvendored candidates, got %d", len(selected))
	}

	selected = selectCandidates(items, RunConfig{IncludeVendored: true, OnlyIDs: []string{"beta"}})
	if len(selected) != 1 || selected[0].ID != "beta" {
		t.Fatalf("expected only beta, got %v", selected)
	}
}

func TestTallyCounts(t *testing.T) {
	results := []CandidateResult{
		{FetchState: FetchCached, ProbeState: ProbePass, Entrypoint: "a.ts"},
		{FetchState: FetchFetched, ProbeState: ProbeFail},
		{FetchState: FetchFailed, ProbeState: ProbeNotAttempted},
	}
	counts := tallyCounts(results)
	if counts.TotalSelected != 3 || counts.Cached != 1 || counts.Fetched != 1 || counts.FetchFailed != 1 {
		t.Errorf("unexpected fetch counts: %+v", counts)
	}
	if counts.ProbePass != 1 || counts.ProbeFail != 1 || counts.ProbeNotAttempted != 1 {
		t.Errorf("unexpected probe counts: %+v", counts)
	}
	if counts.NoEntrypoint != 2 {
		t.Errorf("expected 2 candidates without an entrypoint, got %d", counts.NoEntrypoint)
	}
}
