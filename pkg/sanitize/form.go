package sanitize

// FormResult aggregates the outcome of sanitizing a structured payload.
// Threats are keyed by top-level field name; detections inside nested
// mappings are reported under the field that holds the mapping.
type FormResult struct {
	Sanitized   map[string]interface{} `json:"sanitized"`
	Threats     map[string][]Threat    `json:"threats,omitempty"`
	WasModified bool                   `json:"was_modified"`
}

// FormSanitizer walks a field-name-to-value mapping and applies the Sanitizer
// per field according to a field policy table.
type FormSanitizer struct {
	sanitizer     *Sanitizer
	defaultConfig Config
}

func NewFormSanitizer(sanitizer *Sanitizer) *FormSanitizer {
	return &FormSanitizer{
		sanitizer:     sanitizer,
		defaultConfig: PlainText(),
	}
}

// SanitizeForm cleans every string value in data. Fields without an entry in
// fieldPolicies get the plain-text policy. Nested mappings are recursed into
// with the same policy table. Unmapped non-string scalars pass through
// unchanged; a field explicitly mapped to a policy but holding a non-string
// scalar is replaced with an empty value and tagged invalid_input_type.
func (f *FormSanitizer) SanitizeForm(data map[string]interface{}, fieldPolicies map[string]Config) FormResult {
	result := FormResult{
		Sanitized: make(map[string]interface{}, len(data)),
		Threats:   make(map[string][]Threat),
	}

	for field, value := range data {
		switch v := value.(type) {
		case string:
			res := f.sanitizer.Sanitize(v, f.policyFor(field, fieldPolicies))
			result.Sanitized[field] = res.Sanitized
			if res.WasModified {
				result.WasModified = true
			}
			result.Threats[field] = append(result.Threats[field], res.Threats...)

		case map[string]interface{}:
			sub := f.SanitizeForm(v, fieldPolicies)
			result.Sanitized[field] = sub.Sanitized
			if sub.WasModified {
				result.WasModified = true
			}
			for _, threats := range sub.Threats {
				result.Threats[field] = append(result.Threats[field], threats...)
			}

		case []interface{}:
			cleaned := make([]interface{}, len(v))
			for i, item := range v {
				switch elem := item.(type) {
				case string:
					res := f.sanitizer.Sanitize(elem, f.policyFor(field, fieldPolicies))
					cleaned[i] = res.Sanitized
					if res.WasModified {
						result.WasModified = true
					}
					result.Threats[field] = append(result.Threats[field], res.Threats...)
				case map[string]interface{}:
					sub := f.SanitizeForm(elem, fieldPolicies)
					cleaned[i] = sub.Sanitized
					if sub.WasModified {
						result.WasModified = true
					}
					for _, threats := range sub.Threats {
						result.Threats[field] = append(result.Threats[field], threats...)
					}
				default:
					cleaned[i] = item
				}
			}
			result.Sanitized[field] = cleaned

		default:
			if _, mapped := fieldPolicies[field]; mapped {
				result.Sanitized[field] = ""
				result.Threats[field] = append(result.Threats[field], ThreatInvalidInputType)
				result.WasModified = true
			} else {
				result.Sanitized[field] = value
			}
		}

		if len(result.Threats[field]) == 0 {
			delete(result.Threats, field)
		}
	}

	return result
}

func (f *FormSanitizer) policyFor(field string, fieldPolicies map[string]Config) Config {
	if cfg, ok := fieldPolicies[field]; ok {
		return cfg
	}
	return f.defaultConfig
}
