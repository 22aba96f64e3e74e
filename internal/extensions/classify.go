package extensions

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// skippedDirs mirrors the teacher's extension-discovery directory skip list
// (internal/extensions used to skip .git/node_modules when walking for Go
// extension files); extended with the build/output directories the source
// classifier must also ignore.
var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, "target": true,
	"dist": true, "build": true, ".next": true,
	".turbo": true, ".idea": true, ".vscode": true,
}

// DefaultMaxScanFiles and DefaultMaxFileBytes bound the classifier's
// filesystem walk so a pathological extension tree cannot stall loading.
const (
	DefaultMaxScanFiles = 2000
	DefaultMaxFileBytes = 512 * 1024
)

// ClassifierConfig bounds the classifier's filesystem walk.
type ClassifierConfig struct {
	MaxScanFiles int
	MaxFileBytes int64
}

func (c ClassifierConfig) withDefaults() ClassifierConfig {
	if c.MaxScanFiles <= 0 {
		c.MaxScanFiles = DefaultMaxScanFiles
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = DefaultMaxFileBytes
	}
	return c
}

// candidateScore pairs a candidate source file with its classifier score.
type candidateScore struct {
	path  string
	score int
}

var (
	trueExtensionRe = regexp.MustCompile(`(?m)export\s+default\s+(async\s+)?function`)
	apiImportRe     = regexp.MustCompile(`from\s+["']pi["']|require\(["']pi["']\)`)
	registerCallRe  = regexp.MustCompile(`\bpi\.register(Command|Tool|Shortcut|Flag|Provider)\b`)
	piLiteralRe     = regexp.MustCompile(`"pi\.`)
)

// DetectEntrypoint implements the Source Classifier & Entrypoint Detector
// (C): given an extension root and an optional repo hint path, it scores
// candidate source files and returns the highest-scoring one plus the
// number of files scanned.
func DetectEntrypoint(root string, repoHint string, cfg ClassifierConfig) (string, int, error) {
	cfg = cfg.withDefaults()

	var candidates []candidateScore
	scanned := 0

	hints := collectHints(root, repoHint)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort walk; skip unreadable entries
		}
		if info.IsDir() {
			if skippedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSourceFile(path) {
			return nil
		}
		if scanned >= cfg.MaxScanFiles {
			return filepath.SkipAll
		}
		scanned++
		if info.Size() > cfg.MaxFileBytes {
			return nil
		}

		score := scoreCandidate(path, info.Size(), cfg.MaxFileBytes)
		rel, _ := filepath.Rel(root, path)
		for _, h := range hints {
			if h == rel || h == path || h == filepath.Base(path) {
				score += 100
			}
		}
		candidates = append(candidates, candidateScore{path: path, score: score})
		return nil
	})
	if err != nil {
		return "", scanned, err
	}

	best := ""
	bestScore := -1
	for _, c := range candidates {
		if c.score > bestScore {
			bestScore = c.score
			best = c.path
		}
	}
	return best, scanned, nil
}

func collectHints(root, repoHint string) []string {
	var hints []string
	if repoHint != "" {
		hints = append(hints, repoHint)
	}
	m, ok := readPackageManifest(root)
	if !ok {
		return hints
	}
	if m.Main != "" {
		hints = append(hints, m.Main)
	}
	if m.Module != "" {
		hints = append(hints, m.Module)
	}
	hints = append(hints, exportsHints(m.Exports)...)
	return hints
}

func isSourceFile(path string) bool {
	switch filepath.Ext(path) {
	case ".js", ".mjs", ".cjs", ".ts", ".tsx", ".jsx":
		return true
	}
	return false
}

// scoreCandidate applies the §4.10 scoring rules to a single file.
func scoreCandidate(path string, size int64, maxBytes int64) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	if int64(len(data)) > maxBytes {
		data = data[:maxBytes]
	}
	text := string(data)

	score := 0
	if trueExtensionRe.MatchString(text) {
		score += 35
	}
	if apiImportRe.MatchString(text) {
		score += 15
	}
	if strings.Contains(text, "export default") {
		score += 10
	}
	score += 8 * len(registerCallRe.FindAllString(text, -1))
	if piLiteralRe.MatchString(text) {
		score += 2
	}

	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	switch base {
	case "index", "extension", "main":
		score += 5
	}
	if strings.Contains(strings.ToLower(path), "extension") {
		score += 3
	}

	return score
}
