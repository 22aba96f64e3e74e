// Package diffgroup groups two normalized JSONL streams by a stable
// correlation key and renders a unified diff for any group whose two sides
// disagree.
package diffgroup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// correlationPriority is the strict, first-match-wins order spec.md §4.2
// requires when extracting a kind:id pair from a record's correlation object.
var correlationPriority = []string{
	"tool_call_id",
	"slash_command_id",
	"event_id",
	"host_call_id",
	"rpc_id",
	"scenario_id",
}

// DiffKey returns the stable grouping string "<event>::<kind>:<id>" for a
// normalized record. record is expected to be a map decoded from JSON
// (map[string]any), matching the shape Normalize produces once re-decoded.
func DiffKey(record map[string]any) string {
	event, _ := record["event"].(string)

	corr, _ := record["correlation"].(map[string]any)
	kind, id := "id", "<missing>"
	for _, k := range correlationPriority {
		if v, ok := corr[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				kind, id = k, s
				break
			}
		}
	}

	return fmt.Sprintf("%s::%s:%s", event, kind, id)
}

// Result is the outcome of grouping and comparing two record sets.
type Result struct {
	OK    bool
	Diffs map[string]string // diff_key -> unified diff text, only for mismatched groups
}

// Compare groups left and right by DiffKey and, for every key present on
// either side, compares the grouped record arrays. Keys whose grouped
// arrays differ get a rendered unified diff of their pretty-printed JSON.
// Compare succeeds (Result.OK) iff every group matches.
func Compare(left, right []map[string]any) (Result, error) {
	leftGroups := groupByKey(left)
	rightGroups := groupByKey(right)

	keys := map[string]struct{}{}
	for k := range leftGroups {
		keys[k] = struct{}{}
	}
	for k := range rightGroups {
		keys[k] = struct{}{}
	}

	result := Result{OK: true, Diffs: make(map[string]string)}

	for key := range keys {
		lSide := leftGroups[key]
		rSide := rightGroups[key]

		lPretty, err := prettyAll(lSide)
		if err != nil {
			return Result{}, fmt.Errorf("group %q: %w", key, err)
		}
		rPretty, err := prettyAll(rSide)
		if err != nil {
			return Result{}, fmt.Errorf("group %q: %w", key, err)
		}

		if lPretty == rPretty {
			continue
		}

		result.OK = false
		text, err := UnifiedLineDiff(key+"/expected", key+"/actual", lPretty, rPretty)
		if err != nil {
			return Result{}, fmt.Errorf("group %q: rendering diff: %w", key, err)
		}
		result.Diffs[key] = text
	}

	return result, nil
}

func groupByKey(records []map[string]any) map[string][]map[string]any {
	groups := make(map[string][]map[string]any)
	for _, r := range records {
		key := DiffKey(r)
		groups[key] = append(groups[key], r)
	}
	return groups
}

func prettyAll(records []map[string]any) (string, error) {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", err
		}
		b.Write(data)
	}
	return b.String(), nil
}

// UnifiedLineDiff renders a unified line diff between oldText and newText
// using sourcegraph/go-diff's FileDiff formatter, with hunks computed by a
// line-level longest-common-subsequence comparison.
func UnifiedLineDiff(oldName, newName, oldText, newText string) (string, error) {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	hunk := buildHunk(oldLines, newLines)
	if hunk == nil {
		return "", nil
	}

	fileDiff := &diff.FileDiff{
		OrigName: oldName,
		NewName:  newName,
		Hunks:    []*diff.Hunk{hunk},
	}

	data, err := diff.PrintFileDiff(fileDiff)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// buildHunk computes a single hunk spanning the whole file covering every
// line, using a simple LCS-based line matcher. Returns nil if the inputs
// are identical.
func buildHunk(oldLines, newLines []string) *diff.Hunk {
	ops := lcsDiff(oldLines, newLines)
	if len(ops) == 0 {
		return nil
	}

	changed := false
	var body bytes.Buffer
	var origLines, newLineCount int32

	for _, op := range ops {
		switch op.kind {
		case opEqual:
			body.WriteString(" " + op.text + "\n")
			origLines++
			newLineCount++
		case opDelete:
			body.WriteString("-" + op.text + "\n")
			origLines++
			changed = true
		case opInsert:
			body.WriteString("+" + op.text + "\n")
			newLineCount++
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return &diff.Hunk{
		OrigStartLine: 1,
		OrigLines:     origLines,
		NewStartLine:  1,
		NewLines:      newLineCount,
		Body:          body.Bytes(),
	}
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type lineOp struct {
	kind opKind
	text string
}

// lcsDiff computes a minimal edit script between a and b using classic
// dynamic-programming longest-common-subsequence backtracking.
func lcsDiff(a, b []string) []lineOp {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var ops []lineOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, lineOp{opEqual, a[i]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			ops = append(ops, lineOp{opDelete, a[i]})
			i++
		default:
			ops = append(ops, lineOp{opInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, lineOp{opDelete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, lineOp{opInsert, b[j]})
	}
	return ops
}
