package commentary

import (
	"regexp"
	"strings"
)

// Generated text must not leak raw engine numbers to players; the UI
// renders the evaluation bar separately.
var (
	evalToken  = regexp.MustCompile(`\(?[+-]\d+\.\d+\)?`)
	mateToken  = regexp.MustCompile(`#-?\d+`)
	cpToken    = regexp.MustCompile(`(?i)[+-]?\d+(?:\.\d+)?\s*(?:centipawns?|cp)\b`)
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// scrubEvaluations removes numeric evaluation tokens from generated
// commentary.
func scrubEvaluations(text string) string {
	text = evalToken.ReplaceAllString(text, "")
	text = mateToken.ReplaceAllString(text, "")
	text = cpToken.ReplaceAllString(text, "")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// truncate limits text to max runes, cutting on a rune boundary.
func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
