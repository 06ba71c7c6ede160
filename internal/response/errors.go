package response

import "errors"

var (
	ErrWorkflowNotFound = errors.New("response workflow not found")

	// ErrStepNotApplicable is returned by a provider when the step does not
	// apply to the incident (no source ip to block, no agent to isolate).
	// The step is recorded skipped and the chain continues.
	ErrStepNotApplicable = errors.New("step not applicable")
)
