package eligibility_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/eligibility"
	"github.com/samirrijal/classroom/internal/pkg/geospatial"
)

var (
	site  = domain.GeoPoint{Lat: 43.263, Lon: -2.935}
	today = domain.Date{Year: 2026, Month: time.October, Day: 18}
)

func sampleAt(p domain.GeoPoint, accuracy float64) *domain.PositionSample {
	return &domain.PositionSample{Point: p, AccuracyMeters: accuracy, CapturedAt: time.Now()}
}

func internship(date *domain.Date, target *domain.GeoPoint) domain.TaskWindow {
	return domain.TaskWindow{
		Kind:                domain.TaskKindInternship,
		ScheduledDate:       date,
		Target:              target,
		AllowedRadiusMeters: 500,
	}
}

func TestEvaluate_HomeworkAlwaysAllowed(t *testing.T) {
	other := domain.Date{Year: 2020, Month: time.January, Day: 1}
	far := geospatial.Offset(site, 50000, 0)
	windows := []domain.TaskWindow{
		{Kind: domain.TaskKindHomework},
		{Kind: domain.TaskKindHomework, ScheduledDate: &other, Target: &site},
	}
	samples := []*domain.PositionSample{nil, sampleAt(far, 5000)}

	for _, w := range windows {
		for _, s := range samples {
			v := eligibility.Evaluate(eligibility.DefaultPolicy(), w, s, today)
			if !v.Allowed {
				t.Errorf("homework must be allowed, got %+v", v)
			}
			if v.Reason != domain.ReasonNotApplicable {
				t.Errorf("expected NOT_APPLICABLE, got %s", v.Reason)
			}
			if v.DistanceMeters != nil {
				t.Errorf("expected no distance for homework")
			}
		}
	}
}

func TestEvaluate_NoLocationConfigured(t *testing.T) {
	d := today
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(&d, nil), nil, today)
	if !v.Allowed || v.Reason != domain.ReasonNoLocationConfigured {
		t.Fatalf("expected allowed NO_LOCATION_CONFIGURED, got %+v", v)
	}
	if v.DistanceMeters != nil {
		t.Error("distance must be nil without a target")
	}
}

func TestEvaluate_NoLocationConfigured_WrongDate(t *testing.T) {
	tomorrow := domain.Date{Year: 2026, Month: time.October, Day: 19}
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(&tomorrow, nil), nil, today)
	if v.Allowed || v.Reason != domain.ReasonWrongDate {
		t.Fatalf("expected blocked WRONG_DATE, got %+v", v)
	}
}

func TestEvaluate_LocationNotAcquired(t *testing.T) {
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(nil, &site), nil, today)
	if v.Allowed || v.Reason != domain.ReasonLocationNotAcquired {
		t.Fatalf("expected LOCATION_NOT_ACQUIRED, got %+v", v)
	}
	if v.DistanceMeters != nil {
		t.Error("distance must be nil without a sample")
	}
}

func TestEvaluate_TooFar(t *testing.T) {
	d := today
	p := geospatial.Offset(site, 0, 600)
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(&d, &site), sampleAt(p, 50), today)
	if v.Allowed || v.Reason != domain.ReasonTooFar {
		t.Fatalf("expected TOO_FAR, got %+v", v)
	}
	if v.DistanceMeters == nil || math.Abs(*v.DistanceMeters-600) > 2 {
		t.Fatalf("expected distance ~600, got %v", v.DistanceMeters)
	}
}

func TestEvaluate_LowAccuracyIsInconclusive(t *testing.T) {
	d := today
	p := geospatial.Offset(site, 0, 600)
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(&d, &site), sampleAt(p, 250), today)
	if v.Allowed || v.Reason != domain.ReasonGPSAccuracyTooLow {
		t.Fatalf("expected GPS_ACCURACY_TOO_LOW, got %+v", v)
	}
	if v.DistanceMeters == nil {
		t.Fatal("expected distance to be surfaced")
	}
}

func TestEvaluate_LowAccuracyInsideRadiusIsOK(t *testing.T) {
	p := geospatial.Offset(site, 100, 0)
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(nil, &site), sampleAt(p, 900), today)
	if !v.Allowed || v.Reason != domain.ReasonOK {
		t.Fatalf("expected OK, got %+v", v)
	}
}

func TestEvaluate_WrongDate(t *testing.T) {
	yesterday := domain.Date{Year: 2026, Month: time.October, Day: 17}
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(&yesterday, &site), sampleAt(site, 10), today)
	if v.Allowed || v.Reason != domain.ReasonWrongDate {
		t.Fatalf("expected WRONG_DATE, got %+v", v)
	}
	if v.DistanceMeters == nil || *v.DistanceMeters != 0 {
		t.Fatalf("expected zero distance, got %v", v.DistanceMeters)
	}
}

func TestEvaluate_WrongDateAndTooFar(t *testing.T) {
	yesterday := domain.Date{Year: 2026, Month: time.October, Day: 17}
	p := geospatial.Offset(site, 0, 2000)
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(&yesterday, &site), sampleAt(p, 10), today)
	if v.Reason != domain.ReasonWrongDate {
		t.Fatalf("date problem should win the reason, got %s", v.Reason)
	}
	if v.DateOK {
		t.Error("expected DateOK=false")
	}
	if v.DistanceMeters == nil || *v.DistanceMeters < 1900 {
		t.Errorf("expected the distance problem to be visible, got %v", v.DistanceMeters)
	}
}

func TestEvaluate_OK(t *testing.T) {
	d := today
	p := geospatial.Offset(site, 120, -80)
	v := eligibility.Evaluate(eligibility.DefaultPolicy(), internship(&d, &site), sampleAt(p, 15), today)
	if !v.Allowed || v.Reason != domain.ReasonOK {
		t.Fatalf("expected OK, got %+v", v)
	}
}

func TestEvaluate_RadiusFallsBackToPolicy(t *testing.T) {
	w := internship(nil, &site)
	w.AllowedRadiusMeters = 0
	p := geospatial.Offset(site, 0, 700)

	v := eligibility.Evaluate(eligibility.DefaultPolicy(), w, sampleAt(p, 10), today)
	if v.Reason != domain.ReasonTooFar {
		t.Fatalf("expected TOO_FAR under the 500 m default, got %s", v.Reason)
	}

	wide := eligibility.Policy{AllowedRadiusMeters: 1000, AccuracyThresholdMeters: 200}
	v = eligibility.Evaluate(wide, w, sampleAt(p, 10), today)
	if v.Reason != domain.ReasonOK {
		t.Fatalf("expected OK under a 1000 m policy, got %s", v.Reason)
	}
}

func TestEvaluate_ConfigurableAccuracyThreshold(t *testing.T) {
	p := geospatial.Offset(site, 0, 600)
	strict := eligibility.Policy{AllowedRadiusMeters: 500, AccuracyThresholdMeters: 40}
	v := eligibility.Evaluate(strict, internship(nil, &site), sampleAt(p, 50), today)
	if v.Reason != domain.ReasonGPSAccuracyTooLow {
		t.Fatalf("expected GPS_ACCURACY_TOO_LOW with a 40 m threshold, got %s", v.Reason)
	}
}

func TestMessage_IncludesDistance(t *testing.T) {
	dist := 734.4
	msg := eligibility.Message(domain.EligibilityVerdict{Reason: domain.ReasonTooFar, DistanceMeters: &dist}, domain.TaskWindow{})
	if !strings.Contains(msg, "734 m away") {
		t.Errorf("unexpected message %q", msg)
	}
}
