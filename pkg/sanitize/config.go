package sanitize

// Config is the named policy governing how a single field archetype is
// cleaned. AllowedTags and AllowedAttributes are only meaningful when
// AllowHTML is true.
type Config struct {
	Name                 string              `mapstructure:"name"`
	AllowHTML            bool                `mapstructure:"allow_html"`
	AllowedTags          []string            `mapstructure:"allowed_tags"`
	AllowedAttributes    map[string][]string `mapstructure:"allowed_attributes"`
	MaxLength            int                 `mapstructure:"max_length"`
	StripScripts         bool                `mapstructure:"strip_scripts"`
	NormalizeWhitespace  bool                `mapstructure:"normalize_whitespace"`
	PreventSQLInjection  bool                `mapstructure:"prevent_sql_injection"`
	PreventXSS           bool                `mapstructure:"prevent_xss"`
	LogSuspiciousContent bool                `mapstructure:"log_suspicious_content"`
}

func PlainText() Config {
	return Config{
		Name:                 "plain_text",
		MaxLength:            1000,
		StripScripts:         true,
		NormalizeWhitespace:  true,
		PreventSQLInjection:  true,
		PreventXSS:           true,
		LogSuspiciousContent: true,
	}
}

func RichText() Config {
	return Config{
		Name:        "rich_text",
		AllowHTML:   true,
		AllowedTags: []string{"p", "br", "strong", "em", "u", "ul", "ol", "li", "a", "h1", "h2", "h3"},
		AllowedAttributes: map[string][]string{
			"a": {"href", "title"},
		},
		MaxLength:            10000,
		StripScripts:         true,
		PreventSQLInjection:  true,
		PreventXSS:           true,
		LogSuspiciousContent: true,
	}
}

func Email() Config {
	cfg := PlainText()
	cfg.Name = "email"
	cfg.MaxLength = 254
	return cfg
}

func PersonName() Config {
	cfg := PlainText()
	cfg.Name = "name"
	cfg.MaxLength = 100
	return cfg
}

func Address() Config {
	cfg := PlainText()
	cfg.Name = "address"
	cfg.MaxLength = 500
	return cfg
}

func Phone() Config {
	cfg := PlainText()
	cfg.Name = "phone"
	cfg.MaxLength = 20
	return cfg
}

func URL() Config {
	cfg := PlainText()
	cfg.Name = "url"
	cfg.MaxLength = 2048
	cfg.NormalizeWhitespace = false
	return cfg
}

// ConfigByName resolves a field archetype name from configuration. Unknown
// names fall back to the plain-text policy.
func ConfigByName(name string) Config {
	switch name {
	case "rich_text":
		return RichText()
	case "email":
		return Email()
	case "name":
		return PersonName()
	case "address":
		return Address()
	case "phone":
		return Phone()
	case "url":
		return URL()
	default:
		return PlainText()
	}
}
