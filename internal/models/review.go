package models

import (
	"fmt"
	"strings"
)

// ReviewStatus is the AI review lifecycle state of a submission.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewReviewing ReviewStatus = "reviewing"
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewError     ReviewStatus = "error"
)

// ReviewStatuses lists every valid status.
var ReviewStatuses = []ReviewStatus{ReviewPending, ReviewReviewing, ReviewApproved, ReviewRejected, ReviewError}

// Valid reports whether s is one of the defined states.
func (s ReviewStatus) Valid() bool {
	for _, status := range ReviewStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves s.
func (s ReviewStatus) IsTerminal() bool {
	return s == ReviewApproved || s == ReviewRejected || s == ReviewError
}

// ReviewTrigger names the actor or event causing a transition.
type ReviewTrigger string

const (
	TriggerDispatch ReviewTrigger = "dispatch"
	TriggerVerdict  ReviewTrigger = "verdict"
	TriggerFailure  ReviewTrigger = "failure"
	TriggerTimeout  ReviewTrigger = "timeout"
	TriggerRetry    ReviewTrigger = "retry"
	TriggerOverride ReviewTrigger = "override"
)

type transition struct {
	to      ReviewStatus
	trigger ReviewTrigger
}

// reviewTransitions maps each (target, trigger) pair to its legal source states.
var reviewTransitions = map[transition][]ReviewStatus{
	{ReviewReviewing, TriggerDispatch}: {ReviewPending},
	{ReviewApproved, TriggerVerdict}:   {ReviewReviewing},
	{ReviewRejected, TriggerVerdict}:   {ReviewReviewing},
	{ReviewError, TriggerFailure}:      {ReviewReviewing},
	{ReviewError, TriggerTimeout}:      {ReviewReviewing},
	{ReviewReviewing, TriggerRetry}:    {ReviewError, ReviewRejected},
	{ReviewApproved, TriggerOverride}:  {ReviewPending, ReviewReviewing, ReviewRejected, ReviewError},
}

// SourcesFor returns the states from which trigger may move a submission to to.
// The result is nil when the pair is not a legal transition.
func SourcesFor(to ReviewStatus, trigger ReviewTrigger) []ReviewStatus {
	sources := reviewTransitions[transition{to: to, trigger: trigger}]
	if len(sources) == 0 {
		return nil
	}
	out := make([]ReviewStatus, len(sources))
	copy(out, sources)
	return out
}

// CanTransition reports whether trigger may move a submission from from to to.
func CanTransition(from, to ReviewStatus, trigger ReviewTrigger) bool {
	for _, source := range reviewTransitions[transition{to: to, trigger: trigger}] {
		if source == from {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected state change.
type TransitionError struct {
	From    ReviewStatus
	To      ReviewStatus
	Trigger ReviewTrigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s submission from %s to %s", e.Trigger, e.From, e.To)
}

// ValidateTransition returns a *TransitionError when the change is not in the table.
func ValidateTransition(from, to ReviewStatus, trigger ReviewTrigger) error {
	if CanTransition(from, to, trigger) {
		return nil
	}
	return &TransitionError{From: from, To: to, Trigger: trigger}
}

// RejectionPolicy decides what happens to a submission after a negative verdict.
type RejectionPolicy string

const (
	PolicyReject       RejectionPolicy = "reject"
	PolicyMarkAbnormal RejectionPolicy = "mark_abnormal"
	PolicyIgnore       RejectionPolicy = "ignore"
)

// ParseRejectionPolicy accepts the configured value case-insensitively.
func ParseRejectionPolicy(raw string) (RejectionPolicy, error) {
	switch policy := RejectionPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case PolicyReject, PolicyMarkAbnormal, PolicyIgnore:
		return policy, nil
	default:
		return "", fmt.Errorf("unknown rejection policy %q", raw)
	}
}

// DeletesSubmission reports whether the policy removes the submission entirely.
func (p RejectionPolicy) DeletesSubmission() bool {
	return p == PolicyReject
}

// OverrideAction is a teacher decision that bypasses the AI verdict.
type OverrideAction string

const (
	OverrideApprove         OverrideAction = "approve"
	OverrideRejectAndDelete OverrideAction = "reject_and_delete"
)

// Valid reports whether a is a known override action.
func (a OverrideAction) Valid() bool {
	return a == OverrideApprove || a == OverrideRejectAndDelete
}

// Diagnostics written to ai_review_result.
const (
	DiagnosticInProgress     = "AI review in progress"
	DiagnosticNoImages       = "no images, auto-approved"
	DiagnosticPassed         = "passed AI review"
	DiagnosticRejected       = "rejected by AI review, submission removed"
	DiagnosticRemovalFailed  = "rejected by AI review, removal failed"
	DiagnosticFlagged        = "flagged abnormal by AI review"
	DiagnosticIgnored        = "AI verdict negative (advisory only, ignored)"
	DiagnosticExhausted      = "AI review failed: retries exhausted"
	DiagnosticTimedOut       = "AI review timed out"
	DiagnosticTeacherApprove = "approved by teacher"
	DiagnosticQueueFull      = "review queue unavailable"
)
