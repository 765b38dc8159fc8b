// Package trust is the boundary around the external model call: it strips
// adversarial instructions from fetched text before the text reaches a
// language model, and validates/repairs the model's structured output.
package trust

import (
	"log"
	"regexp"
)

// RedactionToken replaces every injection-pattern match. It must never match
// any pattern in the rule table, which keeps Sanitize idempotent.
const RedactionToken = "[REDACTED]"

// injectionRule pairs a compiled pattern with a description safe to log and
// persist. Descriptions, never matched text, go into flags so attacker
// content cannot re-enter logs or prompts.
type injectionRule struct {
	pattern     *regexp.Regexp
	description string
}

// Ordered rule table of known instruction-override phrasings. Evaluated in
// order; order is part of the contract because earlier redactions can
// consume text later patterns would otherwise match.
var injectionRules = []injectionRule{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`), "ignore previous instructions"},
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?above\s+instructions`), "ignore above instructions"},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous`), "disregard previous"},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?prior`), "forget prior"},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+a`), "persona override (you are now a)"},
	{regexp.MustCompile(`(?i)new\s+instructions?:`), "new instructions marker"},
	{regexp.MustCompile(`(?i)system\s*prompt:`), "system prompt marker"},
	{regexp.MustCompile(`(?i)<\s*system\s*>`), "system tag delimiter"},
	{regexp.MustCompile(`(?i)<\s*/?\s*instructions?\s*>`), "instructions tag delimiter"},
	{regexp.MustCompile(`(?i)respond\s+with\s+only`), "respond with only"},
	{regexp.MustCompile(`(?i)output\s+only\s+the\s+following`), "output only the following"},
	{regexp.MustCompile(`(?i)do\s+not\s+follow\s+any\s+other`), "do not follow any other"},
}

// Sanitize strips known prompt-injection patterns from text before it is
// shown to a language model. It returns the cleaned text and one flag per
// distinct pattern that matched (the pattern's description, not the matched
// text). Empty input is returned unchanged with no flags, and sanitizing
// already-sanitized text is a no-op.
func Sanitize(text, sourceSlug string) (string, []string) {
	if text == "" {
		return text, nil
	}

	var flags []string
	clean := text
	for _, rule := range injectionRules {
		if !rule.pattern.MatchString(clean) {
			continue
		}
		flags = append(flags, "Detected pattern: "+rule.description)
		clean = rule.pattern.ReplaceAllString(clean, RedactionToken)
	}

	if len(flags) > 0 {
		if sourceSlug == "" {
			sourceSlug = "unknown"
		}
		log.Printf("warning: content from %s had %d injection pattern(s) stripped", sourceSlug, len(flags))
	}

	return clean, flags
}
