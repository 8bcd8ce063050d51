package services

import (
	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

// Outcome is the result of evaluating a tally.
type Outcome int

const (
	// OutcomeContinue leaves the post in review.
	OutcomeContinue Outcome = iota
	OutcomeAccept
	OutcomeReject
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccept:
		return "accept"
	case OutcomeReject:
		return "reject"
	default:
		return "continue"
	}
}

// Decision path labels.
const (
	PathQuorum  = "quorum"
	PathCeiling = "ceiling"
	PathAdmin   = "admin"
)

// Decision is an Outcome plus the rule that produced it.
type Decision struct {
	Outcome Outcome
	Path    string
}

// Terminal reports whether the decision ends the review.
func (d Decision) Terminal() bool {
	return d.Outcome != OutcomeContinue
}

// TargetStatus returns the status a terminal decision moves the post to.
func (d Decision) TargetStatus() models.PostStatus {
	if d.Outcome == OutcomeAccept {
		return models.PostStatusAccepted
	}
	return models.PostStatusRejected
}

// QuorumRule maps a tally to a decision. It is a pure function of the counters.
type QuorumRule struct {
	MinReviews      int
	AcceptThreshold float64
	RejectThreshold float64
	MaxReviews      int
}

// NewQuorumRule builds the rule from admission configuration.
func NewQuorumRule(cfg config.AdmissionConfig) QuorumRule {
	return QuorumRule{
		MinReviews:      cfg.MinReviews,
		AcceptThreshold: cfg.AcceptThreshold,
		RejectThreshold: cfg.EffectiveRejectThreshold(),
		MaxReviews:      cfg.MaxReviews,
	}
}

// Evaluate decides on a tally:
//
//   - fewer than MinReviews counted votes: continue
//   - accepts/reviews >= AcceptThreshold: accept
//   - rejects/reviews > RejectThreshold: reject
//   - reviews >= MaxReviews (when set): reject
//   - otherwise: continue, possibly indefinitely
func (q QuorumRule) Evaluate(t models.Tally) Decision {
	if t.Reviews < q.MinReviews || t.Reviews == 0 {
		return Decision{Outcome: OutcomeContinue}
	}

	reviews := float64(t.Reviews)
	if float64(t.Accepts)/reviews >= q.AcceptThreshold {
		return Decision{Outcome: OutcomeAccept, Path: PathQuorum}
	}
	if float64(t.Rejects)/reviews > q.RejectThreshold {
		return Decision{Outcome: OutcomeReject, Path: PathQuorum}
	}
	if q.MaxReviews > 0 && t.Reviews >= q.MaxReviews {
		return Decision{Outcome: OutcomeReject, Path: PathCeiling}
	}
	return Decision{Outcome: OutcomeContinue}
}
