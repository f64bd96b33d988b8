package cycle

import (
	"fmt"
	"regexp"
	"strings"
)

// feedbackCapBytes is the default middle-out truncation cap on the
// feedback envelope injected into a retried Task's description (spec
// §4.1: "16 KiB cap").
const feedbackCapBytes = 16 * 1024

// buildFeedbackEnvelope renders a failed TestResult into the exact format
// the original engine injected into a retry (main.py's run_cycle:
// "PREVIOUS FAILURE FEEDBACK:\n<stdout>\n<stderr>"), then applies
// middle-out truncation so a single verbose failure keeps at most capBytes
// (default feedbackCapBytes) of its text; when truncation happens the
// result is that many bytes plus the omission marker.
func buildFeedbackEnvelope(stdout, stderr string, capBytes int) string {
	if capBytes <= 0 {
		capBytes = feedbackCapBytes
	}
	body := fmt.Sprintf("PREVIOUS FAILURE FEEDBACK:\n%s\n%s", stdout, stderr)
	return truncateMiddle(body, capBytes)
}

// truncateMiddle is the head/tail split with an explicit omission marker,
// grounded on internal/agent/tool_registry.go's truncateChars(..., TruncHeadTail).
func truncateMiddle(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	removed := len(s) - max
	headCount := max / 2
	tailCount := max - headCount
	marker := fmt.Sprintf("\n\n[WARNING: feedback was truncated. %d characters were removed from the middle.]\n\n", removed)
	return s[:headCount] + marker + s[len(s)-tailCount:]
}

// codeFenceRE matches a fenced block, capturing its body. Used to strip a
// model's stray markdown fencing from patch and test-file content before
// either is written to disk (grounded on the original core/utils.py's
// clean_code_block).
var codeFenceRE = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n(.*?)```")

// stripLongestCodeFence returns the body of the longest fenced block in
// content if one exists, otherwise content unchanged (original's
// clean_code_block picks the longest match so an explanatory fence
// wrapping the real payload wins over smaller incidental ones).
func stripLongestCodeFence(content string) string {
	matches := codeFenceRE.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return content
	}
	longest := matches[0][1]
	for _, m := range matches[1:] {
		if len(m[1]) > len(longest) {
			longest = m[1]
		}
	}
	return strings.TrimSpace(longest)
}
