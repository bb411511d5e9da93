// Package eligibility decides whether a student may submit an answer for a
// task given the task's scheduling window and a device position sample.
// It has no dependencies beyond the domain types and is safe for concurrent use.
package eligibility

import (
	"fmt"
	"math"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/pkg/geospatial"
)

// DefaultAccuracyThresholdMeters is the accuracy above which a "too far"
// result is reported as inconclusive instead.
const DefaultAccuracyThresholdMeters = 200.0

// Policy holds the tunable constants of the evaluator.
type Policy struct {
	AllowedRadiusMeters     float64 `json:"allowed_radius_meters"`
	AccuracyThresholdMeters float64 `json:"accuracy_threshold_meters"`
}

// DefaultPolicy returns the 500 m radius / 200 m accuracy policy.
func DefaultPolicy() Policy {
	return Policy{
		AllowedRadiusMeters:     domain.DefaultAllowedRadiusMeters,
		AccuracyThresholdMeters: DefaultAccuracyThresholdMeters,
	}
}

// radius resolves the effective radius: window, then policy, then default.
func (p Policy) radius(w domain.TaskWindow) float64 {
	switch {
	case w.AllowedRadiusMeters > 0:
		return w.AllowedRadiusMeters
	case p.AllowedRadiusMeters > 0:
		return p.AllowedRadiusMeters
	default:
		return domain.DefaultAllowedRadiusMeters
	}
}

func (p Policy) accuracyThreshold() float64 {
	if p.AccuracyThresholdMeters > 0 {
		return p.AccuracyThresholdMeters
	}
	return DefaultAccuracyThresholdMeters
}

// Evaluate applies the ordered eligibility rules. sample may be nil.
func Evaluate(p Policy, w domain.TaskWindow, sample *domain.PositionSample, today domain.Date) domain.EligibilityVerdict {
	if w.Kind != domain.TaskKindInternship {
		return domain.EligibilityVerdict{Allowed: true, Reason: domain.ReasonNotApplicable, DateOK: true}
	}

	dateOK := w.ScheduledDate == nil || *w.ScheduledDate == today

	if w.Target == nil {
		reason := domain.ReasonNoLocationConfigured
		if !dateOK {
			reason = domain.ReasonWrongDate
		}
		return domain.EligibilityVerdict{Allowed: dateOK, Reason: reason, DateOK: dateOK}
	}

	if sample == nil {
		return domain.EligibilityVerdict{Allowed: false, Reason: domain.ReasonLocationNotAcquired, DateOK: dateOK}
	}

	d := geospatial.Distance(sample.Point, *w.Target)
	distanceOK := d <= p.radius(w)

	if !distanceOK && sample.AccuracyMeters > p.accuracyThreshold() {
		return domain.EligibilityVerdict{Allowed: false, Reason: domain.ReasonGPSAccuracyTooLow, DistanceMeters: &d, DateOK: dateOK}
	}

	reason := domain.ReasonOK
	switch {
	case !dateOK:
		reason = domain.ReasonWrongDate
	case !distanceOK:
		reason = domain.ReasonTooFar
	}
	return domain.EligibilityVerdict{
		Allowed:        dateOK && distanceOK,
		Reason:         reason,
		DistanceMeters: &d,
		DateOK:         dateOK,
	}
}

// Message renders a short English explanation of v for display.
func Message(v domain.EligibilityVerdict, w domain.TaskWindow) string {
	var msg string
	switch v.Reason {
	case domain.ReasonNotApplicable:
		return "no location or date check is required for this task"
	case domain.ReasonOK:
		return "you are at the internship location"
	case domain.ReasonNoLocationConfigured:
		return "no location is configured for this internship; submission is allowed"
	case domain.ReasonWrongDate:
		msg = "submissions are only accepted on the scheduled day"
		if w.ScheduledDate != nil {
			msg += " (" + w.ScheduledDate.String() + ")"
		}
	case domain.ReasonLocationNotAcquired:
		return "your location has not been determined yet"
	case domain.ReasonTooFar:
		msg = "you are too far from the internship location"
	case domain.ReasonGPSAccuracyTooLow:
		msg = "your location fix is too imprecise to confirm you are on site"
	default:
		return string(v.Reason)
	}
	if v.DistanceMeters != nil {
		msg += fmt.Sprintf(": you are %.0f m away", math.Round(*v.DistanceMeters))
	}
	return msg
}
