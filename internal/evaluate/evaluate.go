// Package evaluate classifies the free-text evaluation response of the agent
// into a completion verdict. The classifier is intentionally a literal marker
// matcher: anything it cannot recognize collapses to NeedsWork so the loop
// never stops just because it failed to understand an answer.
package evaluate

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of classifying an evaluation response.
type Verdict int

const (
	// VerdictNeedsWork means the cycle's work is not done. This is the safe
	// default for empty, ambiguous, or otherwise unparseable responses.
	VerdictNeedsWork Verdict = iota
	// VerdictComplete means the agent judged the cycle's goal achieved.
	VerdictComplete
)

// String returns the serialized marker form of the verdict.
func (v Verdict) String() string {
	if v == VerdictComplete {
		return "COMPLETE"
	}
	return "NEEDS_WORK"
}

var (
	reasonRe = regexp.MustCompile(`(?i)reason:[ \t]*([^\n]*)`)

	// Markers only count as standalone words; COMPLETE buried inside
	// INCOMPLETE or COMPLETED is not a verdict.
	completeRe  = regexp.MustCompile(`\bCOMPLETE\b`)
	needsWorkRe = regexp.MustCompile(`\bNEEDS_WORK\b`)
)

// Parse classifies raw evaluation text. The text is fence-stripped,
// whitespace-normalized, and matched case-insensitively against the literal
// markers COMPLETE and NEEDS_WORK as standalone words. A NEEDS_WORK marker
// appearing before the first COMPLETE wins; a COMPLETE with no earlier
// contradiction yields Complete; everything else yields NeedsWork.
func Parse(raw string) Verdict {
	text := strings.ToUpper(normalize(raw))

	completeLoc := completeRe.FindStringIndex(text)
	if completeLoc == nil {
		return VerdictNeedsWork
	}
	if needsWorkLoc := needsWorkRe.FindStringIndex(text); needsWorkLoc != nil && needsWorkLoc[0] < completeLoc[0] {
		return VerdictNeedsWork
	}

	return VerdictComplete
}

// ExtractReason returns the text following a case-insensitive "Reason:"
// marker up to the next line break, trimmed. It returns the empty string
// when no reason line is present.
func ExtractReason(raw string) string {
	m := reasonRe.FindStringSubmatch(normalize(raw))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// normalize strips code fences and collapses surrounding whitespace, leaving
// line structure intact for the reason extractor.
func normalize(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		b.WriteString(trimmed)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
