package billing

import "errors"

// Rule identifies the validation rule a draft violated.
type Rule string

const (
	RuleBaseRequired        Rule = "BASE_REQUIRED"
	RuleOverrideActivation  Rule = "OVERRIDE_ACTIVATION"
	RuleMultiroomLimit      Rule = "MULTIROOM_LIMIT"
	RuleDMRRequiresActivate Rule = "DMR_REQUIRES_ACTIVATION"
)

var (
	ErrBaseWorkRequired       = errors.New("base work required")
	ErrActivationNotAllowed   = errors.New("activation not allowed for override base work")
	ErrMultiroomLimitExceeded = errors.New("maximum 3 multiroom units")
	ErrDMRRequiresActivation  = errors.New("DMR requires activation context")
	ErrMultipleBaseWork       = errors.New("multiple base work codes")
	ErrMultipleActivations    = errors.New("multiple activations")
	ErrUnknownWorkCode        = errors.New("unknown work code")
)

// RuleError is returned by Validate. It unwraps to one of the rule sentinels.
type RuleError struct {
	Rule Rule
	Err  error
}

func (e *RuleError) Error() string {
	return e.Err.Error()
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// IsOverrideBase reports whether code replaces the regular base work.
func IsOverrideBase(code string) bool {
	_, ok := overrideBaseCodes[code]
	return ok
}

// Validate checks the draft rules in order and returns the first violation.
func Validate(d *Draft) error {
	if d == nil || d.BaseWork == "" {
		return &RuleError{Rule: RuleBaseRequired, Err: ErrBaseWorkRequired}
	}
	if IsOverrideBase(d.BaseWork) && d.Activation != nil {
		return &RuleError{Rule: RuleOverrideActivation, Err: ErrActivationNotAllowed}
	}
	if d.Activation != nil && d.Activation.MultiroomCount > MaxMultiroomUnits {
		return &RuleError{Rule: RuleMultiroomLimit, Err: ErrMultiroomLimitExceeded}
	}
	if d.HasAddon(CodeDMR) && d.Activation == nil {
		return &RuleError{Rule: RuleDMRRequiresActivate, Err: ErrDMRRequiresActivation}
	}
	return nil
}
