package ratelimit

import "time"

// Operation names protected by the defense layer.
const (
	OperationLogin           = "login"
	OperationPasswordReset   = "password_reset"
	OperationTwoFactor       = "two_factor"
	OperationFileUpload      = "file_upload"
	OperationClaimSubmission = "claim_submission"
	OperationContentMutation = "content_mutation"
	OperationAPI             = "api"
)

// Policy is a (window, quota) pair for one operation.
type Policy struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// DefaultPolicies returns the built-in operation policy table.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		OperationLogin:           {MaxRequests: 5, Window: 15 * time.Minute},
		OperationPasswordReset:   {MaxRequests: 3, Window: 60 * time.Minute},
		OperationTwoFactor:       {MaxRequests: 3, Window: 5 * time.Minute},
		OperationFileUpload:      {MaxRequests: 20, Window: 60 * time.Minute},
		OperationClaimSubmission: {MaxRequests: 5, Window: 24 * time.Hour},
		OperationContentMutation: {MaxRequests: 50, Window: 60 * time.Minute},
		OperationAPI:             {MaxRequests: 1000, Window: 15 * time.Minute},
	}
}

// PolicyTable maps operation names to policies. Unknown operations fall back
// to the general API policy.
type PolicyTable struct {
	policies map[string]Policy
}

func NewPolicyTable(overrides map[string]Policy) *PolicyTable {
	policies := DefaultPolicies()
	for operation, policy := range overrides {
		if policy.MaxRequests <= 0 || policy.Window <= 0 {
			continue
		}
		policies[operation] = policy
	}
	return &PolicyTable{policies: policies}
}

func (t *PolicyTable) For(operation string) Policy {
	if policy, ok := t.policies[operation]; ok {
		return policy
	}
	return t.policies[OperationAPI]
}

// MaxWindow returns the longest window across all policies; records older
// than this are dead under every policy and eligible for garbage collection.
func (t *PolicyTable) MaxWindow() time.Duration {
	var max time.Duration
	for _, policy := range t.policies {
		if policy.Window > max {
			max = policy.Window
		}
	}
	return max
}
