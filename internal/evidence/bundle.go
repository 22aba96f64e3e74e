// Package evidence assembles the CI evidence bundle: it scans a static
// catalog of artifact sources under a repository root, validates schemas
// and per-domain summary payloads, enforces the cross-artifact lineage
// contract, and renders index.json/events.jsonl/bundle_report.md.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// Status is the per-section outcome of scanning an artifact source.
type Status string

const (
	StatusPresent Status = "present"
	StatusMissing Status = "missing"
	StatusInvalid Status = "invalid"
)

// Verdict is the single escalated bundle outcome CI consumes.
type Verdict string

const (
	VerdictComplete     Verdict = "complete"
	VerdictPartial      Verdict = "partial"
	VerdictInsufficient Verdict = "insufficient"
)

// ArtifactSource describes one entry in the static catalog scanned into a
// Section.
type ArtifactSource struct {
	ID             string
	Label          string
	Category       string
	Path           string
	ExpectedSchema string
	IsDirectory    bool
	Required       bool
}

// Section is one row of the evidence bundle, mirroring EvidenceBundleSection.
type Section struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Category     string         `json:"category"`
	Status       Status         `json:"status"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Schema       string         `json:"schema,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
	Diagnostics  []string       `json:"diagnostics,omitempty"`
	FileCount    int            `json:"file_count"`
	TotalBytes   int64          `json:"total_bytes"`
	Required     bool           `json:"required,omitempty"`
}

// Summary aggregates the bundle's sections into the top-level counters CI
// reads first.
type Summary struct {
	TotalSections   int     `json:"total_sections"`
	PresentSections int     `json:"present_sections"`
	MissingSections int     `json:"missing_sections"`
	InvalidSections int     `json:"invalid_sections"`
	TotalArtifacts  int     `json:"total_artifacts"`
	TotalBytes      int64   `json:"total_bytes"`
	Verdict         Verdict `json:"verdict"`
}

// Index is the machine-readable index.json document.
type Index struct {
	Schema      string    `json:"schema"`
	GeneratedAt string    `json:"generated_at"`
	GitRef      string    `json:"git_ref"`
	CIRunID     string    `json:"ci_run_id"`
	Sections    []Section `json:"sections"`
	Summary     Summary   `json:"summary"`
}

// fallbackSearchDirs are the ordered directories Build searches, relative to
// repoRoot, when the parameter_sweeps source's primary path is missing.
var fallbackSearchDirs = []string{
	"tests/perf/reports",
	"tests/perf/runs/results",
}

// DefaultArtifactSources is the full catalog of artifacts the bundle
// collects into a section: extension conformance, diagnostics, e2e
// results, quarantine, performance, security/provenance, traceability, and
// inventory.
func DefaultArtifactSources() []ArtifactSource {
	return []ArtifactSource{
		// conformance
		{ID: "conformance_summary", Label: "Extension conformance summary", Category: "conformance",
			Path: "tests/ext_conformance/reports/conformance_summary.json", ExpectedSchema: "pi.ext.conformance_summary", Required: true},
		{ID: "conformance_baseline", Label: "Conformance baseline", Category: "conformance",
			Path: "tests/ext_conformance/reports/conformance_baseline.json", ExpectedSchema: "pi.ext.conformance_baseline", Required: true},
		{ID: "conformance_events", Label: "Conformance event log", Category: "conformance",
			Path: "tests/ext_conformance/reports/conformance_events.jsonl"},
		{ID: "conformance_report_md", Label: "Conformance report (Markdown)", Category: "conformance",
			Path: "tests/ext_conformance/reports/CONFORMANCE_REPORT.md"},
		{ID: "regression_verdict", Label: "Regression gate verdict", Category: "conformance",
			Path: "tests/ext_conformance/reports/regression_verdict.json", ExpectedSchema: "pi.conformance.regression_gate"},
		{ID: "conformance_trend", Label: "Conformance trend data", Category: "conformance",
			Path: "tests/ext_conformance/reports/conformance_trend.jsonl"},
		// diagnostics
		{ID: "must_pass_gate", Label: "Must-pass gate verdict", Category: "diagnostics",
			Path: "tests/ext_conformance/reports/gate/must_pass_gate_verdict.json", ExpectedSchema: "pi.ext.must_pass_gate", Required: true},
		{ID: "must_pass_gate_events", Label: "Must-pass gate event log", Category: "diagnostics",
			Path: "tests/ext_conformance/reports/gate/must_pass_events.jsonl"},
		{ID: "failure_dossiers", Label: "Per-extension failure dossiers", Category: "diagnostics",
			Path: "tests/ext_conformance/reports/dossiers", IsDirectory: true},
		{ID: "health_delta", Label: "Health & regression delta report", Category: "diagnostics",
			Path: "tests/ext_conformance/reports/health_delta", IsDirectory: true, Required: true},
		{ID: "provider_compat", Label: "Provider compatibility matrix", Category: "diagnostics",
			Path: "tests/ext_conformance/reports/provider_compat", IsDirectory: true},
		{ID: "sharded_reports", Label: "Sharded extension matrix reports", Category: "diagnostics",
			Path: "tests/ext_conformance/reports/sharded", IsDirectory: true},
		{ID: "journey_reports", Label: "Extension journey reports", Category: "diagnostics",
			Path: "tests/ext_conformance/reports/journeys", IsDirectory: true, Required: true},
		{ID: "auto_repair_summary", Label: "Auto-repair summary", Category: "diagnostics",
			Path: "tests/ext_conformance/reports/auto_repair_summary.json", ExpectedSchema: "pi.ext.auto_repair_summary"},
		// e2e
		{ID: "e2e_results", Label: "E2E test results", Category: "e2e",
			Path: "tests/e2e_results", IsDirectory: true},
		// quarantine
		{ID: "quarantine_report", Label: "Quarantine report", Category: "quarantine",
			Path: "tests/quarantine_report.json", ExpectedSchema: "pi.test.quarantine_report"},
		{ID: "quarantine_audit", Label: "Quarantine audit trail", Category: "quarantine",
			Path: "tests/quarantine_audit.jsonl"},
		// performance
		{ID: "perf_budget_summary", Label: "Performance budget summary", Category: "performance",
			Path: "tests/perf/reports/budget_summary.json"},
		{ID: "perf_comparison", Label: "PERF-3X comparison report", Category: "performance",
			Path: "tests/perf/reports/perf_comparison.json", ExpectedSchema: "pi.ext.perf_comparison", Required: true},
		{ID: "parameter_sweeps", Label: "PERF-3X parameter sweeps report", Category: "performance",
			Path: "tests/perf/reports/parameter_sweeps.json", ExpectedSchema: "pi.perf.parameter_sweeps", Required: true},
		{ID: "stress_triage", Label: "PERF-3X stress triage report", Category: "performance",
			Path: "tests/perf/reports/stress_triage.json", ExpectedSchema: "pi.ext.stress_triage", Required: true},
		{ID: "load_time_benchmark", Label: "Extension load-time benchmark", Category: "performance",
			Path: "tests/ext_conformance/reports/load_time_benchmark.json"},
		// security & provenance
		{ID: "risk_review", Label: "Security and licensing risk review", Category: "security",
			Path: "tests/ext_conformance/artifacts/RISK_REVIEW.json", Required: true},
		{ID: "provenance_verification", Label: "Extension provenance verification", Category: "security",
			Path: "tests/ext_conformance/artifacts/PROVENANCE_VERIFICATION.json", Required: true},
		// traceability
		{ID: "traceability_matrix", Label: "Requirement-to-test traceability matrix", Category: "traceability",
			Path: "docs/traceability_matrix.json", Required: true},
		// inventory
		{ID: "extension_inventory", Label: "Extension inventory", Category: "inventory",
			Path: "tests/ext_conformance/reports/inventory.json", ExpectedSchema: "pi.ext.inventory"},
		{ID: "inclusion_manifest", Label: "Extension inclusion manifest", Category: "inventory",
			Path: "tests/ext_conformance/reports/inclusion_manifest", IsDirectory: true},
	}
}

const (
	lineageSpan = 14 * 24 * time.Hour
)

// Build scans every source under repoRoot, runs domain validators and the
// lineage contract, and returns the completed Index.
func Build(repoRoot string, sources []ArtifactSource, gitRef, ciRunID string, now time.Time) (Index, error) {
	var sections []Section

	byID := make(map[string]Section, len(sources))

	for _, src := range sources {
		sec, err := scanSource(repoRoot, src)
		if err != nil {
			return Index{}, fmt.Errorf("scanning %s: %w", src.ID, err)
		}
		sections = append(sections, sec)
		byID[src.ID] = sec
	}

	lineage := buildLineageSection(byID, now)
	sections = append(sections, lineage)

	sort.Slice(sections, func(i, j int) bool {
		if sections[i].Category != sections[j].Category {
			return sections[i].Category < sections[j].Category
		}
		return sections[i].ID < sections[j].ID
	})

	summary := summarize(sections, lineage)

	return Index{
		Schema:      "pi.ci.evidence_bundle.v1",
		GeneratedAt: now.UTC().Format(time.RFC3339),
		GitRef:      gitRef,
		CIRunID:     ciRunID,
		Sections:    sections,
		Summary:     summary,
	}, nil
}

func summarize(sections []Section, lineage Section) Summary {
	s := Summary{TotalSections: len(sections)}
	anyInvalid := false
	anyRequiredPresent := false
	allRequiredPresent := true

	for _, sec := range sections {
		switch sec.Status {
		case StatusPresent:
			s.PresentSections++
		case StatusMissing:
			s.MissingSections++
		case StatusInvalid:
			s.InvalidSections++
			anyInvalid = true
		}
		if sec.Required {
			if sec.Status == StatusPresent {
				anyRequiredPresent = true
			} else {
				allRequiredPresent = false
			}
		}
		s.TotalArtifacts += sec.FileCount
		s.TotalBytes += sec.TotalBytes
	}

	switch {
	case lineage.Status == StatusInvalid || !anyRequiredPresent:
		s.Verdict = VerdictInsufficient
	case allRequiredPresent && !anyInvalid:
		s.Verdict = VerdictComplete
	default:
		s.Verdict = VerdictPartial
	}

	return s
}

func scanSource(repoRoot string, src ArtifactSource) (Section, error) {
	sec := Section{
		ID:       src.ID,
		Label:    src.Label,
		Category: src.Category,
		Schema:   src.ExpectedSchema,
		Required: src.Required,
	}

	path := filepath.Join(repoRoot, src.Path)

	if src.IsDirectory {
		count, bytes, err := walkDir(path)
		if err != nil {
			sec.Status = StatusMissing
			sec.Diagnostics = []string{err.Error()}
			return sec, nil
		}
		sec.FileCount = count
		sec.TotalBytes = bytes
		sec.ArtifactPath = src.Path
		if count > 0 {
			sec.Status = StatusPresent
		} else {
			sec.Status = StatusMissing
		}
		return sec, nil
	}

	resolvedPath, data, found := resolveFileSource(repoRoot, src, path)
	if !found {
		sec.Status = StatusMissing
		sec.Diagnostics = []string{"File not found"}
		return sec, nil
	}

	sec.ArtifactPath = resolvedPath
	sec.FileCount = 1
	sec.TotalBytes = int64(len(data))

	if !strings.HasSuffix(resolvedPath, ".json") {
		sec.Status = StatusPresent
		return sec, nil
	}

	schema := gjson.GetBytes(data, "schema").String()
	if src.ExpectedSchema != "" && !strings.HasPrefix(schema, src.ExpectedSchema) {
		sec.Status = StatusInvalid
		sec.Diagnostics = []string{fmt.Sprintf("schema %q does not match expected prefix %q", schema, src.ExpectedSchema)}
		return sec, nil
	}

	summary, diag := runDomainValidator(src.ID, data)
	if diag != "" {
		sec.Status = StatusInvalid
		sec.Diagnostics = []string{diag}
		return sec, nil
	}
	if summary == nil {
		summary = extractSummary(src.ID, data)
	}
	sec.Summary = summary
	sec.Status = StatusPresent
	return sec, nil
}

// extractSummary pulls a lightweight, non-failing summary out of artifacts
// that have no strict domain validator: a malformed or absent field here
// just means an empty summary, not an invalid section.
func extractSummary(sourceID string, data []byte) map[string]any {
	get := func(path string) (any, bool) {
		r := gjson.GetBytes(data, path)
		if !r.Exists() {
			return nil, false
		}
		return r.Value(), true
	}
	set := func(m map[string]any, key, path string) {
		if v, ok := get(path); ok {
			m[key] = v
		}
	}

	switch sourceID {
	case "conformance_summary":
		m := map[string]any{}
		set(m, "total", "counts.total")
		set(m, "pass", "counts.pass")
		set(m, "fail", "counts.fail")
		set(m, "pass_rate_pct", "pass_rate_pct")
		set(m, "generated_at", "generated_at")
		return m
	case "conformance_baseline":
		m := map[string]any{}
		set(m, "tested", "extension_conformance.tested")
		set(m, "passed", "extension_conformance.passed")
		set(m, "failed", "extension_conformance.failed")
		set(m, "pass_rate_pct", "extension_conformance.pass_rate_pct")
		set(m, "generated_at", "generated_at")
		return m
	case "regression_verdict":
		m := map[string]any{}
		set(m, "status", "status")
		set(m, "effective_pass_rate_pct", "effective_pass_rate_pct")
		return m
	case "quarantine_report":
		m := map[string]any{}
		set(m, "active_count", "active_count")
		set(m, "expired_count", "expired_count")
		return m
	case "stress_triage":
		m := map[string]any{}
		set(m, "pass", "pass")
		set(m, "generated_at", "generated_at")
		return m
	case "extension_inventory":
		m := map[string]any{}
		set(m, "total_extensions", "total_extensions")
		return m
	default:
		return nil
	}
}

// resolveFileSource reads src's primary path; for parameter_sweeps it falls
// back to the most recently modified file under the ordered discovery dirs
// when the primary path is missing.
func resolveFileSource(repoRoot string, src ArtifactSource, primaryPath string) (string, []byte, bool) {
	if data, err := os.ReadFile(primaryPath); err == nil {
		return src.Path, data, true
	}

	if src.ID != "parameter_sweeps" {
		return "", nil, false
	}

	candidateDirs := append(append([]string{}, fallbackSearchDirs...), discoverE2EResultDirs(repoRoot)...)

	var bestPath string
	var bestMod time.Time
	for _, dir := range candidateDirs {
		full := filepath.Join(repoRoot, dir)
		entries, err := os.ReadDir(full)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(bestMod) {
				bestMod = info.ModTime()
				bestPath = filepath.Join(dir, entry.Name())
			}
		}
	}
	if bestPath == "" {
		return "", nil, false
	}
	data, err := os.ReadFile(filepath.Join(repoRoot, bestPath))
	if err != nil {
		return "", nil, false
	}
	return bestPath, data, true
}

// discoverE2EResultDirs expands the tests/e2e_results/*/results glob pattern
// named in spec.md §4.3.
func discoverE2EResultDirs(repoRoot string) []string {
	matches, err := filepath.Glob(filepath.Join(repoRoot, "tests/e2e_results/*/results"))
	if err != nil {
		return nil
	}
	var dirs []string
	for _, m := range matches {
		rel, err := filepath.Rel(repoRoot, m)
		if err == nil {
			dirs = append(dirs, rel)
		}
	}
	return dirs
}

func walkDir(root string) (count int, totalBytes int64, err error) {
	info, statErr := os.Stat(root)
	if statErr != nil || !info.IsDir() {
		return 0, 0, fmt.Errorf("directory not found: %s", root)
	}
	err = filepath.Walk(root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		count++
		totalBytes += fi.Size()
		return nil
	})
	return count, totalBytes, err
}

// runDomainValidator extracts each domain summary payload named in
// spec.md §4.3. diag is non-empty (and summary nil) on validation failure.
func runDomainValidator(sourceID string, data []byte) (summary map[string]any, diag string) {
	switch sourceID {
	case "must_pass_gate":
		return validateMustPassGate(data)
	case "perf_comparison":
		return validatePerfComparison(data)
	case "parameter_sweeps":
		return validateParameterSweeps(data)
	default:
		return nil, ""
	}
}

func validateMustPassGate(data []byte) (map[string]any, string) {
	status := gjson.GetBytes(data, "status").String()
	if status != "pass" && status != "warn" && status != "fail" {
		return nil, fmt.Sprintf("must_pass_gate: status %q is not one of pass|warn|fail", status)
	}
	generatedAt := gjson.GetBytes(data, "generated_at").String()
	runID := gjson.GetBytes(data, "run_id").String()
	correlationID := gjson.GetBytes(data, "correlation_id").String()
	if generatedAt == "" || runID == "" || correlationID == "" {
		return nil, "must_pass_gate: missing generated_at/run_id/correlation_id"
	}

	total := gjson.GetBytes(data, "must_pass_total").Int()
	passed := gjson.GetBytes(data, "must_pass_passed").Int()
	if total <= 0 {
		return nil, "must_pass_gate: must_pass_total must be > 0"
	}
	if passed > total {
		return nil, "must_pass_gate: must_pass_passed exceeds must_pass_total"
	}

	return map[string]any{
		"status":          status,
		"generated_at":    generatedAt,
		"run_id":          runID,
		"correlation_id":  correlationID,
		"must_pass_total":  total,
		"must_pass_passed": passed,
	}, ""
}

func validatePerfComparison(data []byte) (map[string]any, string) {
	verdict := gjson.GetBytes(data, "summary.overall_verdict").String()
	if verdict == "" {
		return nil, "perf_comparison: summary.overall_verdict must be non-empty"
	}
	faster := gjson.GetBytes(data, "summary.faster_count")
	slower := gjson.GetBytes(data, "summary.slower_count")
	comparable := gjson.GetBytes(data, "summary.comparable_count")
	if !faster.Exists() || !slower.Exists() || !comparable.Exists() {
		return nil, "perf_comparison: faster_count/slower_count/comparable_count must be integers"
	}
	return map[string]any{
		"overall_verdict":  verdict,
		"faster_count":     faster.Int(),
		"slower_count":     slower.Int(),
		"comparable_count": comparable.Int(),
	}, ""
}

func validateParameterSweeps(data []byte) (map[string]any, string) {
	status := gjson.GetBytes(data, "readiness.status").String()
	if status != "ready" && status != "blocked" {
		return nil, fmt.Sprintf("parameter_sweeps: readiness.status %q is not one of ready|blocked", status)
	}
	readyResult := gjson.GetBytes(data, "readiness.ready_for_phase5")
	if readyResult.Type.String() != "True" && readyResult.Type.String() != "False" {
		return nil, "parameter_sweeps: readiness.ready_for_phase5 must be boolean"
	}
	blocking := gjson.GetBytes(data, "readiness.blocking_reasons")
	if !blocking.IsArray() {
		return nil, "parameter_sweeps: readiness.blocking_reasons must be an array"
	}
	sourceArtifact := gjson.GetBytes(data, "source_identity.source_artifact").String()
	if sourceArtifact == "" {
		return nil, "parameter_sweeps: source_identity.source_artifact must be non-empty"
	}
	return map[string]any{
		"status":           status,
		"ready_for_phase5": readyResult.Bool(),
		"source_artifact":  sourceArtifact,
	}, ""
}

// buildLineageSection derives the synthetic perf3x_lineage_contract section
// described in spec.md §4.3 (PERF-3X).
func buildLineageSection(sections map[string]Section, now time.Time) Section {
	sec := Section{
		ID:       "perf3x_lineage_contract",
		Label:    "PERF-3X lineage contract",
		Category: "lineage",
	}

	gate, gateOK := sections["must_pass_gate"]
	conformance, confOK := sections["conformance_summary"]
	stress, stressOK := sections["stress_triage"]

	if !gateOK || !confOK || !stressOK ||
		gate.Status != StatusPresent || conformance.Status != StatusPresent || stress.Status != StatusPresent {
		sec.Status = StatusInvalid
		sec.Diagnostics = []string{"one or more of must_pass_gate/conformance_summary/stress_triage is not present"}
		return sec
	}

	runID, _ := gate.Summary["run_id"].(string)
	correlationID, _ := gate.Summary["correlation_id"].(string)
	if runID == "" || !strings.Contains(correlationID, runID) {
		sec.Status = StatusInvalid
		sec.Diagnostics = []string{"must_pass_gate.correlation_id does not contain must_pass_gate.run_id"}
		return sec
	}

	gateTime, gErr := parseGeneratedAt(gate.Summary)
	confTime, cErr := parseGeneratedAt(conformance.Summary)
	stressTime, sErr := parseGeneratedAt(stress.Summary)
	if gErr != nil || cErr != nil || sErr != nil {
		sec.Status = StatusInvalid
		sec.Diagnostics = []string{"unable to parse generated_at timestamps for lineage check"}
		return sec
	}

	span := maxTime(gateTime, confTime, stressTime).Sub(minTime(gateTime, confTime, stressTime))
	if span > lineageSpan {
		sec.Status = StatusInvalid
		sec.Diagnostics = []string{fmt.Sprintf("generated_at span exceeds %s (observed %s)", lineageSpan, span)}
		return sec
	}

	sec.Status = StatusPresent
	sec.Summary = map[string]any{"run_id": runID, "correlation_id": correlationID, "span_seconds": span.Seconds()}
	return sec
}

func parseGeneratedAt(summary map[string]any) (time.Time, error) {
	raw, _ := summary["generated_at"].(string)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing generated_at")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func minTime(ts ...time.Time) time.Time {
	m := ts[0]
	for _, t := range ts[1:] {
		if t.Before(m) {
			m = t
		}
	}
	return m
}

func maxTime(ts ...time.Time) time.Time {
	m := ts[0]
	for _, t := range ts[1:] {
		if t.After(m) {
			m = t
		}
	}
	return m
}

// MarshalIndexJSON serializes the index using sonic, with sorted map keys
// so repeated builds are byte-stable.
func MarshalIndexJSON(idx Index) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(idx, "", "  ")
}

// MarshalEventsJSONL renders one pi.ci.evidence_bundle_event.v1 record per
// section.
func MarshalEventsJSONL(idx Index) ([]byte, error) {
	var b strings.Builder
	for _, sec := range idx.Sections {
		event := map[string]any{
			"schema":  "pi.ci.evidence_bundle_event.v1",
			"section": sec,
		}
		data, err := sonic.Marshal(event)
		if err != nil {
			return nil, err
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// RenderMarkdownReport renders bundle_report.md: sections grouped by
// category with a four-letter verdict tag per line and a missing/invalid
// drill-down.
func RenderMarkdownReport(idx Index) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Evidence Bundle Report\n\n")
	fmt.Fprintf(&b, "Generated: %s  \nGit ref: %s  \nCI run: %s  \nVerdict: **%s**\n\n",
		idx.GeneratedAt, idx.GitRef, idx.CIRunID, idx.Summary.Verdict)

	byCategory := map[string][]Section{}
	var categories []string
	for _, sec := range idx.Sections {
		if _, ok := byCategory[sec.Category]; !ok {
			categories = append(categories, sec.Category)
		}
		byCategory[sec.Category] = append(byCategory[sec.Category], sec)
	}
	sort.Strings(categories)

	var drillDown []Section

	for _, cat := range categories {
		fmt.Fprintf(&b, "## %s\n\n", cat)
		for _, sec := range byCategory[cat] {
			tag := statusTag(sec.Status)
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", tag, sec.Label, sec.ID)
			if sec.Status != StatusPresent {
				drillDown = append(drillDown, sec)
			}
		}
		b.WriteByte('\n')
	}

	if len(drillDown) > 0 {
		fmt.Fprintf(&b, "## Missing/Invalid\n\n")
		for _, sec := range drillDown {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", sec.Label, sec.Status, strings.Join(sec.Diagnostics, "; "))
		}
	}

	return b.String()
}

func statusTag(s Status) string {
	switch s {
	case StatusPresent:
		return "PASS"
	case StatusInvalid:
		return "WARN"
	default:
		return "MISS"
	}
}

// WriteArtifacts writes index.json, events.jsonl, and bundle_report.md under
// outDir (typically tests/evidence_bundle relative to the repo root).
func WriteArtifacts(outDir string, idx Index) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	indexJSON, err := MarshalIndexJSON(idx)
	if err != nil {
		return fmt.Errorf("marshaling index.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "index.json"), indexJSON, 0o644); err != nil {
		return fmt.Errorf("writing index.json: %w", err)
	}

	events, err := MarshalEventsJSONL(idx)
	if err != nil {
		return fmt.Errorf("marshaling events.jsonl: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "events.jsonl"), events, 0o644); err != nil {
		return fmt.Errorf("writing events.jsonl: %w", err)
	}

	report := RenderMarkdownReport(idx)
	if err := os.WriteFile(filepath.Join(outDir, "bundle_report.md"), []byte(report), 0o644); err != nil {
		return fmt.Errorf("writing bundle_report.md: %w", err)
	}

	return nil
}
