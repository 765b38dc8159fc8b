package trust

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joelkehle/brief/internal/content"
)

const (
	MaxSummaryShortChars = 500
	MaxSummaryLongChars  = 2000
)

// fieldRule validates and repairs one annotation field. It writes the
// cleaned value into the annotation and returns an error message when the
// raw value violated the rule (silent repairs return "").
type fieldRule struct {
	key   string
	clean func(raw any, present bool, a *content.Annotation) string
}

// annotationRules is the ordered per-field rule table. Every rule is total:
// it always leaves its field populated with a safe value.
var annotationRules = []fieldRule{
	{key: "summary_short", clean: func(raw any, _ bool, a *content.Annotation) string {
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			a.SummaryShort = ""
			return "Missing or invalid summary_short"
		}
		a.SummaryShort = truncate(s, MaxSummaryShortChars)
		return ""
	}},
	{key: "summary_long", clean: func(raw any, present bool, a *content.Annotation) string {
		s, ok := raw.(string)
		if present && !ok {
			a.SummaryLong = ""
			return "Invalid summary_long type"
		}
		a.SummaryLong = truncate(s, MaxSummaryLongChars)
		return ""
	}},
	{key: "topics", clean: func(raw any, present bool, a *content.Annotation) string {
		a.Topics = []string{}
		if !present {
			return ""
		}
		list, ok := raw.([]any)
		if !ok {
			return "Topics is not a list"
		}
		for _, t := range list {
			if s, ok := t.(string); ok {
				a.Topics = append(a.Topics, s)
			}
		}
		return ""
	}},
	{key: "entities", clean: func(raw any, present bool, a *content.Annotation) string {
		a.Entities = []content.Entity{}
		if !present {
			return ""
		}
		list, ok := raw.([]any)
		if !ok {
			return "Entities is not a list"
		}
		for _, e := range list {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			name, ok := m["name"]
			if !ok {
				continue
			}
			entity := content.Entity{Name: stringify(name), Type: "unknown"}
			if t, ok := m["type"]; ok {
				entity.Type = stringify(t)
			}
			a.Entities = append(a.Entities, entity)
		}
		return ""
	}},
	{key: "lane_builders", clean: laneRule(func(a *content.Annotation, v float64) { a.LaneBuilders = v })},
	{key: "lane_security", clean: laneRule(func(a *content.Annotation, v float64) { a.LaneSecurity = v })},
	{key: "lane_business", clean: laneRule(func(a *content.Annotation, v float64) { a.LaneBusiness = v })},
}

// Validate checks a raw model annotation against the expected schema,
// clamping and defaulting invalid fields. The returned annotation is always
// fully populated and safe to persist regardless of validity; callers log
// the errors and proceed with the cleaned record.
func Validate(raw map[string]any) (bool, content.Annotation, []string) {
	var (
		cleaned content.Annotation
		errs    []string
	)
	for _, rule := range annotationRules {
		value, present := raw[rule.key]
		if msg := rule.clean(value, present, &cleaned); msg != "" {
			errs = append(errs, msg)
		}
	}
	if len(errs) > 0 {
		log.Printf("warning: annotation validation errors: %v", errs)
	}
	return len(errs) == 0, cleaned, errs
}

// laneRule coerces a lane score to a float clamped to [0,1]; values that
// cannot be coerced default to 0 with an error.
func laneRule(set func(*content.Annotation, float64)) func(any, bool, *content.Annotation) string {
	return func(raw any, present bool, a *content.Annotation) string {
		if !present {
			set(a, 0)
			return ""
		}
		v, ok := toFloat(raw)
		if !ok {
			set(a, 0)
			return fmt.Sprintf("Invalid lane score: %v", raw)
		}
		set(a, clamp01(v))
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case bool:
		// Models occasionally emit booleans for numeric fields; treat them
		// the way a loose float() coercion would.
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// truncate caps s at max characters, not bytes, so multibyte text is never
// cut mid-rune.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
