package domain

import (
	"time"
)

type VoterRole string

const (
	RoleAnonymous   VoterRole = "anonymous"
	RoleMember      VoterRole = "member"
	RoleContributor VoterRole = "contributor"
	RoleExpert      VoterRole = "expert"
	RoleAdmin       VoterRole = "admin"
)

func ValidVoterRole(r string) bool {
	switch VoterRole(r) {
	case RoleAnonymous, RoleMember, RoleContributor, RoleExpert, RoleAdmin:
		return true
	}
	return false
}

// DefaultWeight is the reporting weight assigned when the identity component
// does not supply one. Auto-resolution uses raw counts, never weights.
func (r VoterRole) DefaultWeight() float64 {
	switch r {
	case RoleContributor:
		return 1.5
	case RoleExpert:
		return 2.0
	case RoleAdmin:
		return 3.0
	default:
		return 1.0
	}
}

// Vote is one user's current position on a conflict. The ledger holds at most
// one Vote per (UserID, ConflictID); resubmission mutates it in place.
type Vote struct {
	ID         string    `json:"id"`
	ConflictID string    `json:"conflict_id"`
	UserID     string    `json:"user_id"`
	Choice     Choice    `json:"choice"`
	Reason     string    `json:"reason,omitempty"`
	VotedAt    time.Time `json:"voted_at"`
	Role       VoterRole `json:"role"`
	Weight     float64   `json:"weight"`
	IPAddress  string    `json:"ip_address,omitempty"`
}

func (v *Vote) Clone() *Vote {
	cp := *v
	return &cp
}

// LedgerKey is the composite key the ledger stores votes under.
func (v *Vote) LedgerKey() string {
	return VoteKey(v.UserID, v.ConflictID)
}

func VoteKey(userID, conflictID string) string {
	return userID + "_" + conflictID
}
