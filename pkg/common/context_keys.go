package common

type contextKey string

const (
	SanitizedPayloadContextKey contextKey = "sanitized_payload"
	ThreatsContextKey          contextKey = "detected_threats"
	CallerIdentityContextKey   contextKey = "caller_identity"
	OperationContextKey        contextKey = "operation"
)

func (k contextKey) String() string {
	return string(k)
}
