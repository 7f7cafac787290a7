package detect

import (
	"fmt"

	"argus/core"
)

// ConflictType classifies how two rules interfere.
type ConflictType string

const (
	// ConflictContradiction means two rules cover the same IP pair with
	// different actions. Blocks activation.
	ConflictContradiction ConflictType = "contradiction"
	// ConflictShadow means an earlier rule with the same action covers the
	// candidate's scope, so the candidate can never take effect. Blocks
	// activation.
	ConflictShadow ConflictType = "shadow"
	// ConflictRedundant means two rules cover the same IP pair with the same
	// action. Advisory only.
	ConflictRedundant ConflictType = "redundant"
)

// Blocking reports whether the conflict prevents rule activation.
func (t ConflictType) Blocking() bool {
	return t == ConflictContradiction || t == ConflictShadow
}

// RuleConflict describes one interference between a candidate rule and an
// already-active rule.
type RuleConflict struct {
	Type          ConflictType `json:"type"`
	RuleID        string       `json:"rule_id"`
	ConflictsWith string       `json:"conflicts_with"`
	Message       string       `json:"message"`
}

// DetectConflicts compares a candidate rule against the active set. Rules
// without an action are pure correlation rules and never conflict. The
// candidate itself is skipped when it is already in the set.
func DetectConflicts(candidate *core.CorrelationRule, active []*core.CorrelationRule) []RuleConflict {
	if candidate.Action == "" {
		return nil
	}

	var conflicts []RuleConflict
	for _, other := range active {
		if other.ID == candidate.ID || other.Action == "" {
			continue
		}

		switch {
		case samePair(candidate, other) && other.Action != candidate.Action:
			conflicts = append(conflicts, RuleConflict{
				Type:          ConflictContradiction,
				RuleID:        candidate.ID,
				ConflictsWith: other.ID,
				Message: fmt.Sprintf("rule %s (%s) and rule %s (%s) cover the same IP pair with opposite actions",
					candidate.ID, candidate.Action, other.ID, other.Action),
			})
		case samePair(candidate, other):
			conflicts = append(conflicts, RuleConflict{
				Type:          ConflictRedundant,
				RuleID:        candidate.ID,
				ConflictsWith: other.ID,
				Message: fmt.Sprintf("rule %s duplicates rule %s: same IP pair, same action %s",
					candidate.ID, other.ID, candidate.Action),
			})
		case other.Action == candidate.Action && covers(other, candidate) && other.Priority < candidate.Priority:
			// The earlier-evaluated rule already handles everything the
			// candidate would match.
			conflicts = append(conflicts, RuleConflict{
				Type:          ConflictShadow,
				RuleID:        candidate.ID,
				ConflictsWith: other.ID,
				Message: fmt.Sprintf("rule %s is shadowed by earlier rule %s with the same action",
					candidate.ID, other.ID),
			})
		}
	}
	return conflicts
}

// HasBlockingConflict reports whether any conflict prevents activation.
func HasBlockingConflict(conflicts []RuleConflict) bool {
	for _, c := range conflicts {
		if c.Type.Blocking() {
			return true
		}
	}
	return false
}

// samePair reports whether both rules scope the identical IP pair.
func samePair(a, b *core.CorrelationRule) bool {
	return a.SourceIP == b.SourceIP && a.DestinationIP == b.DestinationIP
}

// covers reports whether rule a's scope includes everything rule b matches.
// An empty IP on a is a wildcard.
func covers(a, b *core.CorrelationRule) bool {
	srcCovered := a.SourceIP == "" || a.SourceIP == b.SourceIP
	dstCovered := a.DestinationIP == "" || a.DestinationIP == b.DestinationIP
	return srcCovered && dstCovered
}
