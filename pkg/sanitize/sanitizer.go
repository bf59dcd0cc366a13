package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Result is the per-value outcome of a sanitization pass.
type Result struct {
	Sanitized       string   `json:"sanitized"`
	WasModified     bool     `json:"was_modified"`
	Threats         []Threat `json:"threats,omitempty"`
	OriginalLength  int      `json:"original_length"`
	SanitizedLength int      `json:"sanitized_length"`
}

type Sanitizer struct {
	logger *logrus.Logger
}

func NewSanitizer(logger *logrus.Logger) *Sanitizer {
	return &Sanitizer{logger: logger}
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[\s\p{Zs}]+`)
	attrPattern       = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9-]*)\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	tagNamePattern    = regexp.MustCompile(`^<\s*(/?)\s*([a-zA-Z][a-zA-Z0-9]*)`)
	unsafeURIPattern  = regexp.MustCompile(`(?i)javascript:|vbscript:|data:\s*text/html|data:\s*application/javascript`)

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&#34;",
		"'", "&#39;",
		"/", "&#x2F;",
	)
)

// Sanitize cleans a single value under the given policy. The pass is
// deterministic and idempotent: the deletion stages run to a fixpoint before
// the final escape, and the escape step canonicalizes entities, so re-running
// on already-clean output returns it unchanged.
func (s *Sanitizer) Sanitize(value string, cfg Config) Result {
	original := value
	threats := newThreatSet()

	// Entities are decoded up front so encoded payloads cannot slip past the
	// pattern stage; the non-HTML escape at the tail re-encodes canonically.
	current := html.UnescapeString(value)

	for i := 0; i < 3; i++ {
		next := s.pass(current, cfg, threats)
		if next == current {
			break
		}
		current = next
	}

	if !cfg.AllowHTML {
		current = htmlEscaper.Replace(current)
	}

	if len(threats.ordered) > 0 && cfg.LogSuspiciousContent && s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"policy":  cfg.Name,
			"threats": threats.ordered,
			"value":   truncateForLog(original),
		}).Warn("suspicious content sanitized")
	}

	return Result{
		Sanitized:       current,
		WasModified:     current != original,
		Threats:         threats.ordered,
		OriginalLength:  len(original),
		SanitizedLength: len(current),
	}
}

// pass runs the deletion stages once: length clamp, threat detection,
// category strip, HTML policy, whitespace normalization.
func (s *Sanitizer) pass(value string, cfg Config, threats *threatSet) string {
	if cfg.MaxLength > 0 {
		runes := []rune(value)
		if len(runes) > cfg.MaxLength {
			value = string(runes[:cfg.MaxLength])
			threats.add(ThreatExcessiveLength)
		}
	}

	detected := DetectThreats(value)
	for _, category := range detected {
		threats.add(category)
	}

	for _, category := range detected {
		if category == ThreatSQLInjection && !cfg.PreventSQLInjection {
			continue
		}
		if category == ThreatXSS && !cfg.PreventXSS && !cfg.StripScripts {
			continue
		}
		value = stripCategory(value, category)
	}

	if cfg.AllowHTML {
		value = filterTags(value, cfg)
	} else {
		value = tagPattern.ReplaceAllString(value, "")
	}

	if cfg.NormalizeWhitespace {
		value = strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
	}

	return value
}

// filterTags removes tags outside the allow-list and rewrites kept tags
// canonically with only their allowed attributes. Event-handler attributes
// and script-bearing URIs are dropped regardless of the allow-list.
func filterTags(value string, cfg Config) string {
	allowed := make(map[string]bool, len(cfg.AllowedTags))
	for _, tag := range cfg.AllowedTags {
		allowed[strings.ToLower(tag)] = true
	}

	return tagPattern.ReplaceAllStringFunc(value, func(tag string) string {
		nameMatch := tagNamePattern.FindStringSubmatch(tag)
		if nameMatch == nil {
			return ""
		}
		closing := nameMatch[1] == "/"
		name := strings.ToLower(nameMatch[2])
		if !allowed[name] {
			return ""
		}
		if closing {
			return "</" + name + ">"
		}

		var kept []string
		for _, attr := range attrPattern.FindAllStringSubmatch(tag, -1) {
			attrName := strings.ToLower(attr[1])
			if strings.HasPrefix(attrName, "on") {
				continue
			}
			if !attrAllowed(cfg.AllowedAttributes[name], attrName) {
				continue
			}
			attrValue := strings.Trim(attr[2], `"'`)
			if unsafeURIPattern.MatchString(attrValue) {
				continue
			}
			kept = append(kept, attrName+`="`+attrValue+`"`)
		}

		if len(kept) == 0 {
			return "<" + name + ">"
		}
		return "<" + name + " " + strings.Join(kept, " ") + ">"
	})
}

func attrAllowed(allowed []string, name string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

func truncateForLog(value string) string {
	if len(value) > 100 {
		return value[:97] + "..."
	}
	return value
}

type threatSet struct {
	seen    map[Threat]bool
	ordered []Threat
}

func newThreatSet() *threatSet {
	return &threatSet{seen: make(map[Threat]bool)}
}

func (t *threatSet) add(category Threat) {
	if !t.seen[category] {
		t.seen[category] = true
		t.ordered = append(t.ordered, category)
	}
}
