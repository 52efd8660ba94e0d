package services

import "time"

// RiskInput is what a RiskScorer sees about a successful grant request.
type RiskInput struct {
	UserID int64
	At     time.Time
	// RecentFailures counts failed grant attempts for the session in the
	// current rate-limit window.
	RecentFailures int
}

// RiskScorer assigns an informational 0-100 score to a new grant.
type RiskScorer interface {
	Score(in RiskInput) int
}

// RiskScorerFunc adapts a function to RiskScorer.
type RiskScorerFunc func(in RiskInput) int

func (f RiskScorerFunc) Score(in RiskInput) int { return f(in) }

// DefaultRiskScorer adds AfterHoursPoints for requests between 22:00 and
// 06:00 in Location and FailurePoints per recent failure.
type DefaultRiskScorer struct {
	Location         *time.Location
	AfterHoursPoints int
	FailurePoints    int
}

// NewDefaultRiskScorer returns the scorer used when none is configured.
func NewDefaultRiskScorer() *DefaultRiskScorer {
	return &DefaultRiskScorer{Location: time.Local, AfterHoursPoints: 30, FailurePoints: 15}
}

func (d *DefaultRiskScorer) Score(in RiskInput) int {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	score := 0
	if h := in.At.In(loc).Hour(); h >= 22 || h < 6 {
		score += d.AfterHoursPoints
	}
	score += in.RecentFailures * d.FailurePoints
	return clampInt(score, 0, 100)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
