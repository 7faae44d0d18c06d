package extraction

import (
	"regexp"
	"strings"
)

// Many notifications carry the payer's name only inline in the
// narration, between a numeric code prefix and a trailing verb like
// "TRF"/"TRANSFER"/"FOR"/"TO", or as "from X to Y". These heuristics
// mirror the formats Nigerian bank alerts actually use.

var (
	fromToPattern       = regexp.MustCompile(`(?i)\bfrom\s+([A-Z][A-Z\s]+?)\s+to\b`)
	transferFromPattern = regexp.MustCompile(`(?im)transfer\s+from\s+([A-Z][A-Z\s]+?)(?:-|$)`)
	trfVerbPattern      = regexp.MustCompile(`(?i)[\d\-]+\s*-?\s*([A-Z][A-Z\s]{2,}?)\s+(?:TRF|TRANSFER|FOR|TO)\b`)
	remarksPattern      = regexp.MustCompile(`(?im)remarks?\s*:\s*([A-Z][A-Z\s]{2,}?)(?:\s*$)`)
	labeledNamePattern  = regexp.MustCompile(`(?im)(?:sender|payer|depositor|account\s*name)\s*:\s*([A-Z][A-Z\s]+?)(?:\s+to\b|\s+account\b|\s*$)`)
	titlePrefixPattern  = regexp.MustCompile(`(?i)^(NT|MR|MRS|MS|DR|PROF|ENG|CHIEF|ALHAJI|ALHAJA)\s+`)
	spaceRunPattern     = regexp.MustCompile(`\s+`)
)

// ExtractSenderName scans free text for the payer's name. Returns ""
// when no plausible name is found.
func ExtractSenderName(text string) string {
	patterns := []*regexp.Regexp{
		fromToPattern,
		transferFromPattern,
		trfVerbPattern,
		remarksPattern,
		labeledNamePattern,
	}
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if name := cleanSenderName(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

// cleanSenderName normalizes a candidate name and rejects values that
// cannot be a person's name (email addresses, stray fragments).
func cleanSenderName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = spaceRunPattern.ReplaceAllString(name, " ")
	name = titlePrefixPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)

	if strings.Contains(name, "@") {
		return ""
	}
	if len(name) < 3 {
		return ""
	}
	return name
}
