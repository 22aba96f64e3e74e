package core

import "strings"

const (
	defaultMaxLines = 2000
	defaultMaxBytes = 50 * 1024 // 50KB
	grepMaxLineLen  = 500
)

// TruncationResult describes how output was truncated. Content holds only
// the truncated payload — callers build their own human-readable notice and
// decide what structured detail, if any, accompanies the response.
type TruncationResult struct {
	Content               string
	Truncated             bool
	TruncBy               string // "lines", "bytes", or ""
	Total                 int    // total lines before truncation
	Kept                  int    // lines kept after truncation
	FirstLineExceedsLimit bool   // true when even the first kept line didn't fit the byte budget
}

// truncationDetails is the structured shape attached alongside a truncated
// response's text. fantasy.ToolResponse carries text only (every call site
// across the retrieved stack constructs one via NewTextResponse /
// NewTextErrorResponse, none expose a side channel for structured payloads),
// so textResponse/textErrorResponse append this as a trailing JSON line.
type truncationDetails struct {
	Truncated             bool   `json:"truncated"`
	TruncatedBy           string `json:"truncatedBy,omitempty"`
	TotalLines            int    `json:"totalLines,omitempty"`
	FirstLineExceedsLimit bool   `json:"firstLineExceedsLimit,omitempty"`
}

// truncateTail keeps the last maxLines lines and at most maxBytes bytes.
// Used for bash output where the tail is most relevant. maxLines == 0 means
// no line cap is applied (only the byte budget).
func truncateTail(content string, maxLines, maxBytes int) TruncationResult {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	lines := strings.Split(content, "\n")
	total := len(lines)

	if len(content) <= maxBytes && (maxLines <= 0 || total <= maxLines) {
		return TruncationResult{Content: content, Total: total, Kept: total}
	}

	truncBy := ""
	if maxLines > 0 && total > maxLines {
		lines = lines[total-maxLines:]
		truncBy = "lines"
	}

	result := strings.Join(lines, "\n")

	firstLineExceeds := false
	if len(result) > maxBytes {
		truncBy = "bytes"
		tail := result[len(result)-maxBytes:]
		if idx := strings.Index(tail, "\n"); idx >= 0 {
			result = tail[idx+1:]
		} else {
			result = tail
			firstLineExceeds = true
		}
	}

	kept := 0
	if !firstLineExceeds {
		kept = strings.Count(result, "\n") + 1
	}

	return TruncationResult{
		Content:               result,
		Truncated:             truncBy != "",
		TruncBy:               truncBy,
		Total:                 total,
		Kept:                  kept,
		FirstLineExceedsLimit: firstLineExceeds,
	}
}

// truncateHead keeps the first maxLines lines and at most maxBytes bytes.
// Used for read, grep, find, ls output where the head is most relevant.
// maxLines == 0 means no line cap is applied (only the byte budget) — the
// read tool uses this mode since it has already sliced to its own limit.
func truncateHead(content string, maxLines, maxBytes int) TruncationResult {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	lines := strings.Split(content, "\n")
	total := len(lines)

	if len(content) <= maxBytes && (maxLines <= 0 || total <= maxLines) {
		return TruncationResult{Content: content, Total: total, Kept: total}
	}

	truncBy := ""
	if maxLines > 0 && total > maxLines {
		lines = lines[:maxLines]
		truncBy = "lines"
	}

	result := strings.Join(lines, "\n")

	firstLineExceeds := false
	if len(result) > maxBytes {
		truncBy = "bytes"
		head := result[:maxBytes]
		if idx := strings.LastIndex(head, "\n"); idx >= 0 {
			result = head[:idx]
		} else {
			result = head
			firstLineExceeds = true
		}
	}

	kept := 0
	if !firstLineExceeds {
		kept = strings.Count(result, "\n") + 1
	}

	return TruncationResult{
		Content:               result,
		Truncated:             truncBy != "",
		TruncBy:               truncBy,
		Total:                 total,
		Kept:                  kept,
		FirstLineExceedsLimit: firstLineExceeds,
	}
}

// truncateLine truncates a single line to maxChars, appending "..." if cut.
func truncateLine(line string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = grepMaxLineLen
	}
	if len(line) <= maxChars {
		return line
	}
	return line[:maxChars] + "..."
}
