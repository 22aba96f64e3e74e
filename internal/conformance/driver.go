// Package conformance implements the unvendored extension conformance
// driver: it fetches a pool of extension candidates (npm, git, or plain
// URL sources), detects each candidate's entrypoint, probes it against the
// real JS extension runtime in an isolated subprocess, and emits a JSONL
// event stream plus a ranked summary report.
package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pi-run/pi/internal/extensions"
)

// FetchState mirrors the candidate's source-acquisition outcome.
type FetchState string

const (
	FetchCached  FetchState = "cached"
	FetchFetched FetchState = "fetched"
	FetchFailed  FetchState = "failed"
	FetchSkipped FetchState = "skipped"
)

// ProbeState mirrors the candidate's runtime-probe outcome.
type ProbeState string

const (
	ProbePass          ProbeState = "pass"
	ProbeFail          ProbeState = "fail"
	ProbeTimeout       ProbeState = "timeout"
	ProbeNotAttempted  ProbeState = "not_attempted"
)

// SourceKind distinguishes how a candidate's source is fetched.
type SourceKind string

const (
	SourceNpm SourceKind = "npm"
	SourceURL SourceKind = "url"
	SourceGit SourceKind = "git"
)

// CandidateSource is a tagged union over the three ways a candidate's
// source may be acquired.
type CandidateSource struct {
	Kind          SourceKind `json:"kind"`
	Package       string     `json:"package,omitempty"`
	Version       string     `json:"version,omitempty"`
	URL           string     `json:"url,omitempty"`
	Repo          string     `json:"repo,omitempty"`
	Path          string     `json:"path,omitempty"`
	RepositoryURL string     `json:"repository_url,omitempty"`
}

// Candidate is one entry in the candidate pool document.
type Candidate struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	SourceTier string          `json:"source_tier"`
	Source     CandidateSource `json:"source"`
}

// CandidatePool is the top-level candidate pool document.
type CandidatePool struct {
	Items []Candidate `json:"items"`
}

// PriorityDoc ranks candidates for ordering and reporting.
type PriorityDoc struct {
	Items []struct {
		ID   string `json:"id"`
		Rank int    `json:"rank"`
	} `json:"items"`
}

// CodeSearchSummary supplies repo->entrypoint hints gathered out-of-band.
type CodeSearchSummary struct {
	Repos []struct {
		Repo       string `json:"repo"`
		Entrypoint string `json:"entrypoint,omitempty"`
	} `json:"repos"`
}

// CandidateResult is one row of the run report, and also the shape of each
// JSONL event line.
type CandidateResult struct {
	ID                  string     `json:"id"`
	SourceTier          string     `json:"sourceTier"`
	SourceType          string     `json:"sourceType"`
	Status              string     `json:"status"`
	Rank                *int       `json:"rank,omitempty"`
	FetchState          FetchState `json:"fetchState"`
	FetchError          string     `json:"fetchError,omitempty"`
	LocalRoot           string     `json:"localRoot,omitempty"`
	Entrypoint          string     `json:"entrypoint,omitempty"`
	EntryScore          *int       `json:"entryScore,omitempty"`
	ScannedFiles         int        `json:"scannedFiles"`
	ProbeState          ProbeState `json:"probeState"`
	ProbeError          string     `json:"probeError,omitempty"`
	RegisteredCommands  int        `json:"registeredCommands"`
	RegisteredTools     int        `json:"registeredTools"`
	RegisteredFlags     int        `json:"registeredFlags"`
	RegisteredProviders int        `json:"registeredProviders"`
	DurationMS          int64      `json:"durationMs"`
}

// ReportCounts tallies a run's outcomes across all selected candidates.
type ReportCounts struct {
	TotalSelected      int `json:"totalSelected"`
	Cached             int `json:"cached"`
	Fetched            int `json:"fetched"`
	FetchFailed        int `json:"fetchFailed"`
	NoEntrypoint       int `json:"noEntrypoint"`
	ProbePass          int `json:"probePass"`
	ProbeFail          int `json:"probeFail"`
	ProbeTimeout       int `json:"probeTimeout"`
	ProbeNotAttempted  int `json:"probeNotAttempted"`
}

// Report is the final run-all report document.
type Report struct {
	Schema            string            `json:"schema"`
	GeneratedAt       string            `json:"generatedAt"`
	CandidatePool     string            `json:"candidatePool"`
	PriorityJSON      string            `json:"priorityJson"`
	CodeSearchSummary string            `json:"codeSearchSummary"`
	Counts            ReportCounts      `json:"counts"`
	Results           []CandidateResult `json:"results"`
}

// RunConfig holds every run-all parameter (spec.md §6's flag set).
type RunConfig struct {
	RepoRoot          string
	CandidatePool     string
	PriorityJSON      string
	CodeSearchSummary string
	OutJSON           string
	OutJSONL          string
	CacheDir          string
	Workers           int
	Limit             int
	IncludeVendored   bool
	FetchTimeout      time.Duration
	ProbeTimeout      time.Duration
	MaxScanFiles      int
	MaxFileBytes      int64
	NoProbe           bool
	OnlyIDs           []string
	ExePath           string

	// OnResult, if set, is called synchronously as each candidate's result
	// streams in, after it is written to the JSONL event file. Used by the
	// CLI to drive an interactive progress line; nil is a safe no-op for
	// non-interactive callers.
	OnResult func(CandidateResult)
}

type sharedConfig struct {
	RunConfig
	rankMap       map[string]int
	repoEntryHint map[string]string
}

// ProbeOneResult is the JSON payload a `probe-one` subprocess invocation
// prints to stdout.
type ProbeOneResult struct {
	Status              string `json:"status"`
	Error               string `json:"error,omitempty"`
	RegisteredCommands  int    `json:"registeredCommands"`
	RegisteredTools     int    `json:"registeredTools"`
	RegisteredFlags     int    `json:"registeredFlags"`
	RegisteredProviders int    `json:"registeredProviders"`
	DurationMS          int64  `json:"durationMs"`
}

// ProbeEntryWithRuntime loads a single extension entrypoint into a fresh
// Runtime + Manager pair and reports what it registered. This is what the
// `probe-one` subcommand calls in a throwaway process per candidate, so a
// misbehaving extension (infinite loop, panic, runaway goroutine) cannot
// take the orchestrating run-all process down with it.
func ProbeEntryWithRuntime(ctx context.Context, entry, cwd string) (commands, tools, flags, providers int, err error) {
	rt := extensions.NewRuntime()
	mgr := extensions.NewManager(rt)

	spec := extensions.NewLoadSpec(cwd, entry)

	payload, loadErr := rt.LoadExtension(ctx, spec)
	rt.Shutdown(2 * time.Second)
	if loadErr != nil {
		return 0, 0, 0, 0, loadErr
	}
	mgr.Register(payload)

	// "flags" in the original candidate-probe report maps onto this port's
	// shortcut registrations, the closest analog to a CLI flag binding.
	return len(mgr.RegisteredCommands()), len(mgr.RegisteredTools()),
		len(mgr.RegisteredShortcuts()), len(mgr.RegisteredProviders()), nil
}

// RunProbeOne implements the `probe-one` subcommand: probe a single entry
// and return a ProbeOneResult; printing it is left to the caller.
func RunProbeOne(ctx context.Context, entry, cwd string) ProbeOneResult {
	started := time.Now()
	out := ProbeOneResult{Status: "fail"}

	commands, tools, flags, providers, err := ProbeEntryWithRuntime(ctx, entry, cwd)
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Status = "pass"
		out.RegisteredCommands = commands
		out.RegisteredTools = tools
		out.RegisteredFlags = flags
		out.RegisteredProviders = providers
	}
	out.DurationMS = time.Since(started).Milliseconds()
	return out
}

// RunAll executes the full fetch/detect/probe pipeline across a candidate
// pool, writing out.Jsonl incrementally and out.Json once every worker has
// reported back, and returns the finished Report.
func RunAll(ctx context.Context, cfg RunConfig) (Report, error) {
	if cfg.Workers <= 0 {
		return Report{}, fmt.Errorf("workers must be > 0")
	}

	pool, err := readJSON[CandidatePool](filepath.Join(cfg.RepoRoot, cfg.CandidatePool))
	if err != nil {
		return Report{}, fmt.Errorf("read candidate pool: %w", err)
	}

	shared := sharedConfig{
		RunConfig:     cfg,
		rankMap:       loadRankMap(filepath.Join(cfg.RepoRoot, cfg.PriorityJSON)),
		repoEntryHint: loadRepoEntryHints(filepath.Join(cfg.RepoRoot, cfg.CodeSearchSummary)),
	}

	if err := os.MkdirAll(filepath.Join(cfg.RepoRoot, cfg.CacheDir), 0o755); err != nil {
		return Report{}, fmt.Errorf("create cache dir: %w", err)
	}

	selected := selectCandidates(pool.Items, cfg)

	jobs := make(chan Candidate)
	results := make(chan CandidateResult)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				results <- processCandidate(ctx, shared, item)
			}
		}()
	}
	go func() {
		for _, item := range selected {
			jobs <- item
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	if err := os.MkdirAll(filepath.Join(cfg.RepoRoot, filepath.Dir(cfg.OutJSONL)), 0o755); err != nil {
		return Report{}, err
	}
	if err := os.MkdirAll(filepath.Join(cfg.RepoRoot, filepath.Dir(cfg.OutJSON)), 0o755); err != nil {
		return Report{}, err
	}

	jsonlPath := filepath.Join(cfg.RepoRoot, cfg.OutJSONL)
	jsonlFile, err := os.Create(jsonlPath)
	if err != nil {
		return Report{}, fmt.Errorf("create %s: %w", jsonlPath, err)
	}
	defer jsonlFile.Close()

	var all []CandidateResult
	for result := range results {
		line, err := json.Marshal(result)
		if err != nil {
			return Report{}, fmt.Errorf("serialize jsonl result: %w", err)
		}
		if _, err := jsonlFile.Write(append(line, '\n')); err != nil {
			return Report{}, fmt.Errorf("write jsonl result: %w", err)
		}
		if cfg.OnResult != nil {
			cfg.OnResult(result)
		}
		all = append(all, result)
	}

	sort.Slice(all, func(i, j int) bool {
		ri, rj := rankOrMax(all[i].Rank), rankOrMax(all[j].Rank)
		if ri != rj {
			return ri < rj
		}
		return all[i].ID < all[j].ID
	})

	counts := tallyCounts(all)

	report := Report{
		Schema:            "pi.ext.unvendored_fetch_probe.v1",
		GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
		CandidatePool:     cfg.CandidatePool,
		PriorityJSON:      cfg.PriorityJSON,
		CodeSearchSummary: cfg.CodeSearchSummary,
		Counts:            counts,
		Results:           all,
	}

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return Report{}, fmt.Errorf("serialize report: %w", err)
	}
	jsonPath := filepath.Join(cfg.RepoRoot, cfg.OutJSON)
	if err := os.WriteFile(jsonPath, append(reportJSON, '\n'), 0o644); err != nil {
		return Report{}, fmt.Errorf("write %s: %w", jsonPath, err)
	}

	return report, nil
}

func rankOrMax(r *int) int {
	if r == nil {
		return int(^uint(0) >> 1)
	}
	return *r
}

func tallyCounts(results []CandidateResult) ReportCounts {
	counts := ReportCounts{TotalSelected: len(results)}
	for _, r := range results {
		switch r.FetchState {
		case FetchCached:
			counts.Cached++
		case FetchFetched:
			counts.Fetched++
		case FetchFailed:
			counts.FetchFailed++
		}
		if r.Entrypoint == "" {
			counts.NoEntrypoint++
		}
		switch r.ProbeState {
		case ProbePass:
			counts.ProbePass++
		case ProbeFail:
			counts.ProbeFail++
		case ProbeTimeout:
			counts.ProbeTimeout++
		case ProbeNotAttempted:
			counts.ProbeNotAttempted++
		}
	}
	return counts
}

func selectCandidates(items []Candidate, cfg RunConfig) []Candidate {
	var selected []Candidate
	for _, item := range items {
		if cfg.IncludeVendored || strings.EqualFold(item.Status, "unvendored") {
			selected = append(selected, item)
		}
	}

	if len(cfg.OnlyIDs) > 0 {
		want := make(map[string]bool, len(cfg.OnlyIDs))
		for _, id := range cfg.OnlyIDs {
			want[strings.ToLower(id)] = true
		}
		var filtered []Candidate
		for _, item := range selected {
			if want[strings.ToLower(item.ID)] {
				filtered = append(filtered, item)
			}
		}
		selected = filtered
	}

	if cfg.Limit > 0 && len(selected) > cfg.Limit {
		selected = selected[:cfg.Limit]
	}
	return selected
}

func processCandidate(ctx context.Context, shared sharedConfig, item Candidate) CandidateResult {
	started := time.Now()
	out := CandidateResult{
		ID:         item.ID,
		SourceTier: item.SourceTier,
		SourceType: string(item.Source.Kind),
		Status:     item.Status,
		FetchState: FetchSkipped,
		ProbeState: ProbeNotAttempted,
	}
	if rank, ok := shared.rankMap[item.ID]; ok {
		r := rank
		out.Rank = &r
	}

	state, root, err := fetchCandidateSource(ctx, shared, item)
	if err != nil {
		out.FetchState = FetchFailed
		out.FetchError = err.Error()
		out.DurationMS = time.Since(started).Milliseconds()
		return out
	}
	out.FetchState = state
	out.LocalRoot = displayRelOrAbs(shared.RepoRoot, root)

	hint := repoHintForItem(shared.repoEntryHint, item)
	entry, scanned, err := extensions.DetectEntrypoint(root, hint, extensions.ClassifierConfig{
		MaxScanFiles: shared.MaxScanFiles,
		MaxFileBytes: shared.MaxFileBytes,
	})
	out.ScannedFiles = scanned
	if err != nil || entry == "" {
		out.DurationMS = time.Since(started).Milliseconds()
		return out
	}
	out.Entrypoint = displayRelOrAbs(shared.RepoRoot, entry)

	if !shared.NoProbe {
		probe, err := runProbeSubprocess(ctx, shared, entry, root)
		switch {
		case err != nil && strings.Contains(err.Error(), "timeout"):
			out.ProbeState = ProbeTimeout
			out.ProbeError = err.Error()
		case err != nil:
			out.ProbeState = ProbeFail
			out.ProbeError = err.Error()
		default:
			if strings.EqualFold(probe.Status, "pass") {
				out.ProbeState = ProbePass
			} else {
				out.ProbeState = ProbeFail
				out.ProbeError = probe.Error
			}
			out.RegisteredCommands = probe.RegisteredCommands
			out.RegisteredTools = probe.RegisteredTools
			out.RegisteredFlags = probe.RegisteredFlags
			out.RegisteredProviders = probe.RegisteredProviders
		}
	}

	out.DurationMS = time.Since(started).Milliseconds()
	return out
}

// runProbeSubprocess re-invokes the driver's own executable in probe-one
// mode so a misbehaving candidate extension cannot corrupt the orchestrating
// process's state.
func runProbeSubprocess(ctx context.Context, shared sharedConfig, entry, cwd string) (ProbeOneResult, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, maxDuration(shared.ProbeTimeout, time.Second))
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, shared.ExePath, "probe-one", "--entry", entry, "--cwd", cwd)
	cmd.Dir = shared.RepoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if timeoutCtx.Err() == context.DeadlineExceeded {
		return ProbeOneResult{}, fmt.Errorf("probe timeout")
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return ProbeOneResult{}, fmt.Errorf("%s", msg)
	}

	var result ProbeOneResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); err != nil {
		return ProbeOneResult{}, fmt.Errorf("probe json parse: %w", err)
	}
	return result, nil
}

func maxDuration(d, min time.Duration) time.Duration {
	if d < min {
		return min
	}
	return d
}

// fetchCandidateSource acquires a candidate's source tree into the cache
// directory, using git clone for git/url sources and npm pack+tar for npm
// sources, skipping work entirely when a `.fetched` marker already exists.
func fetchCandidateSource(ctx context.Context, shared sharedConfig, item Candidate) (FetchState, string, error) {
	switch item.Source.Kind {
	case SourceNpm:
		return fetchNpmSource(ctx, shared, item)
	case SourceURL:
		slug, ok := githubRepoSlug(item.Source.URL)
		if !ok {
			return "", "", fmt.Errorf("unsupported non-GitHub URL source: %s", item.Source.URL)
		}
		return fetchGitHubRepo(ctx, shared, item.Source.URL, slug)
	case SourceGit:
		slug, ok := githubRepoSlug(item.Source.Repo)
		if !ok {
			slug = sanitizeForFS(item.Source.Repo)
		}
		state, root, err := fetchGitHubRepo(ctx, shared, item.Source.Repo, slug)
		if err != nil {
			return "", "", err
		}
		if item.Source.Path != "" {
			adjusted := filepath.Join(root, item.Source.Path)
			if _, statErr := os.Stat(adjusted); statErr == nil {
				return state, adjusted, nil
			}
		}
		return state, root, nil
	default:
		return "", "", fmt.Errorf("unknown source kind %q", item.Source.Kind)
	}
}

func fetchNpmSource(ctx context.Context, shared sharedConfig, item Candidate) (FetchState, string, error) {
	idDir := filepath.Join(shared.CacheDir, "npm", sanitizeForFS(fmt.Sprintf("%s-%s", item.ID, item.Source.Version)))
	idDir = filepath.Join(shared.RepoRoot, idDir)
	if fetchedMarkerExists(idDir) {
		return FetchCached, idDir, nil
	}

	tarballDir := filepath.Join(shared.RepoRoot, shared.CacheDir, "npm_tarballs")
	if err := os.MkdirAll(tarballDir, 0o755); err != nil {
		return "", "", err
	}

	spec := fmt.Sprintf("%s@%s", item.Source.Package, item.Source.Version)
	out, err := runWithTimeout(ctx, shared.FetchTimeout, shared.RepoRoot, "npm", "pack", spec,
		"--pack-destination", tarballDir, "--silent")
	if err != nil {
		return "", "", fmt.Errorf("npm pack failed: %w", err)
	}

	var tarName string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.TrimSpace(line) != "" {
			tarName = strings.TrimSpace(line)
		}
	}
	if tarName == "" {
		return "", "", fmt.Errorf("npm pack did not emit tarball name")
	}

	tarPath := filepath.Join(tarballDir, tarName)
	if _, err := os.Stat(tarPath); err != nil {
		return "", "", fmt.Errorf("packed tarball not found: %s", tarPath)
	}

	os.RemoveAll(idDir)
	if err := os.MkdirAll(idDir, 0o755); err != nil {
		return "", "", err
	}
	if _, err := runWithTimeout(ctx, shared.FetchTimeout, shared.RepoRoot, "tar", "-xzf", tarPath,
		"-C", idDir, "--strip-components=1"); err != nil {
		return "", "", fmt.Errorf("tar extract failed: %w", err)
	}

	writeFetchedMarker(idDir, fmt.Sprintf("npm:%s\n", spec))
	return FetchFetched, idDir, nil
}

func fetchGitHubRepo(ctx context.Context, shared sharedConfig, url, slug string) (FetchState, string, error) {
	idDir := filepath.Join(shared.RepoRoot, shared.CacheDir, "github", sanitizeForFS(slug))
	if fetchedMarkerExists(idDir) {
		return FetchCached, idDir, nil
	}
	os.RemoveAll(idDir)
	if err := os.MkdirAll(filepath.Dir(idDir), 0o755); err != nil {
		return "", "", err
	}

	cloneURL := normalizeCloneURL(url)
	_, err := runWithTimeout(ctx, shared.FetchTimeout, shared.RepoRoot, "git", "clone",
		"--depth", "1", "--filter=blob:none", cloneURL, idDir)
	if err != nil {
		_, err = runWithTimeout(ctx, shared.FetchTimeout, shared.RepoRoot, "git", "clone",
			"--depth", "1", cloneURL, idDir)
		if err != nil {
			return "", "", fmt.Errorf("git clone failed: %w", err)
		}
	}

	writeFetchedMarker(idDir, fmt.Sprintf("git:%s\n", url))
	return FetchFetched, idDir, nil
}

func fetchedMarkerExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".fetched"))
	return err == nil
}

func writeFetchedMarker(dir, content string) {
	_ = os.WriteFile(filepath.Join(dir, ".fetched"), []byte(content), 0o644)
}

func runWithTimeout(ctx context.Context, timeout time.Duration, cwd string, name string, args ...string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, maxDuration(timeout, time.Second))
	defer cancel()
	cmd := exec.CommandContext(timeoutCtx, name, args...)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timeout")
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s", msg)
	}
	return stdout.String(), nil
}

var githubSSHPattern = regexp.MustCompile(`^git@github\.com:(.+)$`)

func githubRepoSlug(url string) (string, bool) {
	u := strings.TrimSpace(url)
	u = strings.TrimPrefix(u, "git+")

	if m := githubSSHPattern.FindStringSubmatch(u); m != nil {
		slug := strings.Trim(strings.TrimSuffix(m[1], ".git"), "/")
		if strings.Contains(slug, "/") {
			return slug, true
		}
	}

	trimmed := u
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parts := strings.SplitN(trimmed, "github.com/", 2)
	if len(parts) != 2 {
		return "", false
	}
	segs := strings.Split(strings.Trim(parts[1], "/"), "/")
	if len(segs) < 2 {
		return "", false
	}
	owner, repo := segs[0], strings.TrimSuffix(segs[1], ".git")
	return owner + "/" + repo, true
}

func normalizeCloneURL(url string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(url), "git+")
	switch {
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		if strings.HasSuffix(strings.ToLower(trimmed), ".git") {
			return trimmed
		}
		return trimmed + ".git"
	case strings.HasPrefix(trimmed, "git@"):
		return trimmed
	default:
		asHTTPS := "https://" + strings.TrimPrefix(trimmed, "github.com/")
		if strings.HasSuffix(strings.ToLower(asHTTPS), ".git") {
			return asHTTPS
		}
		return asHTTPS + ".git"
	}
}

func sanitizeForFS(input string) string {
	var b strings.Builder
	for _, ch := range input {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}

func repoHintForItem(hints map[string]string, item Candidate) string {
	var repo string
	switch item.Source.Kind {
	case SourceURL:
		repo, _ = githubRepoSlug(item.Source.URL)
	case SourceGit:
		repo, _ = githubRepoSlug(item.Source.Repo)
	case SourceNpm:
		if item.Source.RepositoryURL != "" {
			repo, _ = githubRepoSlug(item.Source.RepositoryURL)
		}
	}
	if repo == "" {
		return ""
	}
	return hints[strings.ToLower(repo)]
}

func loadRankMap(path string) map[string]int {
	m := map[string]int{}
	if path == "" {
		return m
	}
	doc, err := readJSON[PriorityDoc](path)
	if err != nil {
		return m
	}
	for _, item := range doc.Items {
		m[item.ID] = item.Rank
	}
	return m
}

func loadRepoEntryHints(path string) map[string]string {
	m := map[string]string{}
	doc, err := readJSON[CodeSearchSummary](path)
	if err != nil {
		return m
	}
	for _, repo := range doc.Repos {
		if repo.Entrypoint != "" {
			m[strings.ToLower(repo.Repo)] = repo.Entrypoint
		}
	}
	return m
}

func readJSON[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func displayRelOrAbs(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
