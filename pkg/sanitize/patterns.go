package sanitize

import "regexp"

// Threat is a named class of malicious-input pattern.
type Threat string

const (
	ThreatSQLInjection     Threat = "sql_injection_attempt"
	ThreatXSS              Threat = "xss_attempt"
	ThreatCommandInjection Threat = "command_injection_attempt"
	ThreatPathTraversal    Threat = "path_traversal_attempt"
	ThreatDirectoryEscape  Threat = "directory_escape_attempt"
	ThreatLDAPInjection    Threat = "ldap_injection_attempt"
	ThreatExcessiveLength  Threat = "excessive_length"
	ThreatInvalidInputType Threat = "invalid_input_type"
)

// detectionPatterns classify a value without modifying it. Matching is
// pattern-based, not a parser: this is a defense-in-depth layer, and passing
// it is not proof of safety.
var detectionPatterns = map[Threat]*regexp.Regexp{
	ThreatSQLInjection: regexp.MustCompile(`(?i)(` +
		`['"]\s*OR\s*['"]?\s*\d+\s*=\s*\d+|` +
		`['"]\s*OR\s*['"][^'"]*['"]\s*=\s*['"][^'"]*['"]|` +
		`UNION\s+(?:ALL\s+)?SELECT\s+(?:\*|[a-z_][a-z0-9_]*(?:\s*,\s*[a-z_][a-z0-9_]*)*)\s+FROM|` +
		`(?:SLEEP|BENCHMARK|WAITFOR\s+DELAY)\s*\(\s*\d+|` +
		`['";]\s*;?\s*(?:INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE)\s+(?:INTO|FROM|TABLE|DATABASE|SCHEMA|VIEW|INDEX)|` +
		`(?:['";]|\s)\s*(?:/\*[^*]*\*/|--[^\r\n]*|#[^\r\n]*)|` +
		`\b(?:DROP|DELETE|TRUNCATE)\s+(?:TABLE|DATABASE|SCHEMA)\s+\w+|` +
		`\bALTER\s+TABLE\s+\w+` +
		`)`),

	ThreatXSS: regexp.MustCompile(`(?i)(` +
		`<[^>]*script|` +
		`<[^>]*iframe|<[^>]*object|<[^>]*embed|<[^>]*applet|` +
		`\bon\w+\s*=|` +
		`javascript:|vbscript:|` +
		`data:\s*text/html|data:\s*application/javascript|` +
		`expression\s*\(` +
		`)`),

	ThreatCommandInjection: regexp.MustCompile(`(?i)(` +
		`[;&|]\s*(?:ls|dir|cat|type|more|wget|curl|nc|netcat|id|whoami|rm|sh|bash)\b|` +
		`\|\s*(?:cmd|command|sh|bash|powershell|cmd\.exe)\b|` +
		`\b(?:system|exec|shell_exec|popen|passthru)\s*\(|` +
		`\$\([^)]*\)|` +
		"`[^`]*`|" +
		`(?:nc|netcat|ncat)\s+-[ev]|` +
		`\b(?:perl|python|ruby)\s+-[ce]\b|` +
		`\bcat\s+/etc/(?:passwd|shadow)\b` +
		`)`),

	ThreatPathTraversal: regexp.MustCompile(`(?i)(` +
		`\.\./|\.\.\\|` +
		`%2e%2e%2f|%2e%2e/|\.\.%2f|%2e%2e%5c|` +
		`%c0%ae%c0%ae/` +
		`)`),

	ThreatDirectoryEscape: regexp.MustCompile(`(?i)(` +
		`(?:^|[^.\w])/(?:bin|etc|proc|sys|var/log|root|home)/|` +
		`(?:\.\./|\.\.\\)+(?:bin|etc|proc|sys|var|root|home)(?:/|\\)|` +
		`(?:etc|usr|var|opt|root|home)[/\\][^/\\\s]*(?:passwd|shadow|bash_history|id_rsa)|` +
		`%00|\x00` +
		`)`),

	ThreatLDAPInjection: regexp.MustCompile(`(?i)(` +
		`\(\s*[|&!]\s*\([^)]+\)|` +
		`\)\s*\(\s*[|&]\s*\(|` +
		`(?:objectClass|cn|uid|mail|sn|givenName|userPassword)\s*=\s*\*|` +
		`\)\s*\(\s*(?:and|or)\s*\(` +
		`)`),
}

// stripPatterns rewrite a value once its category has matched. Every rule is
// a pure deletion, so re-running it on its own output is a no-op.
var stripPatterns = map[Threat][]*regexp.Regexp{
	ThreatSQLInjection: {
		regexp.MustCompile(`(?s)/\*.*?\*/`),
		regexp.MustCompile(`--[^\r\n]*`),
		regexp.MustCompile(`(?m)(^|['";\s])#[^\r\n]*`),
		regexp.MustCompile(`['";]+`),
	},
	ThreatXSS: {
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<script[^>]*>`),
		regexp.MustCompile(`(?i)\bon\w+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)data:\s*text/html[^,\s]*,?`),
	},
	ThreatCommandInjection: {
		regexp.MustCompile(`\$\([^)]*\)`),
		regexp.MustCompile("`[^`]*`"),
		regexp.MustCompile(`[;&|]+`),
	},
	ThreatPathTraversal: {
		regexp.MustCompile(`(?i)(?:\.\./|\.\.\\)+`),
		regexp.MustCompile(`(?i)(?:%2e%2e%2f|%2e%2e/|\.\.%2f|%2e%2e%5c)+`),
	},
	ThreatLDAPInjection: {
		regexp.MustCompile(`[()|&!*]+`),
	},
}

// DetectThreats returns every category whose pattern matches value, in a
// stable order. It runs all categories; the per-field policy decides which
// detections also get stripped.
func DetectThreats(value string) []Threat {
	order := []Threat{
		ThreatSQLInjection,
		ThreatXSS,
		ThreatCommandInjection,
		ThreatPathTraversal,
		ThreatDirectoryEscape,
		ThreatLDAPInjection,
	}
	var found []Threat
	for _, category := range order {
		if detectionPatterns[category].MatchString(value) {
			found = append(found, category)
		}
	}
	return found
}

func stripCategory(value string, category Threat) string {
	for _, pattern := range stripPatterns[category] {
		value = pattern.ReplaceAllString(value, "")
	}
	return value
}
