// Package kyc gates money-moving operations on identity verification.
package kyc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotVerified is the sentinel matched by errors.Is for verification
// refusals.
var ErrNotVerified = errors.New("kyc: member not verified")

// NotVerifiedError carries a user-facing, specific reason. A member
// must never see a generic failure for a KYC refusal.
type NotVerifiedError struct {
	MemberID string
	Reason   string
}

func (e *NotVerifiedError) Error() string {
	return fmt.Sprintf("kyc: member %s not verified: %s", e.MemberID, e.Reason)
}

func (e *NotVerifiedError) Is(target error) bool {
	return target == ErrNotVerified
}

// Verifier answers whether a member has passed identity verification.
type Verifier interface {
	IsVerified(ctx context.Context, memberID string) error
}

// AllowAll passes every member. Used in development and tests.
type AllowAll struct{}

func (AllowAll) IsVerified(ctx context.Context, memberID string) error { return nil }

// StaticVerifier holds an explicit allow list with per-member refusal
// reasons.
type StaticVerifier struct {
	mu       sync.RWMutex
	verified map[string]bool
	reasons  map[string]string
}

func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{
		verified: make(map[string]bool),
		reasons:  make(map[string]string),
	}
}

// SetVerified marks a member as verified.
func (v *StaticVerifier) SetVerified(memberID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verified[memberID] = true
	delete(v.reasons, memberID)
}

// SetRejected marks a member unverified with a reason shown to them.
func (v *StaticVerifier) SetRejected(memberID, reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verified[memberID] = false
	v.reasons[memberID] = reason
}

func (v *StaticVerifier) IsVerified(ctx context.Context, memberID string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.verified[memberID] {
		return nil
	}
	reason := v.reasons[memberID]
	if reason == "" {
		reason = "identity documents have not been submitted"
	}
	return &NotVerifiedError{MemberID: memberID, Reason: reason}
}
