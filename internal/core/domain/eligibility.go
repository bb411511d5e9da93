package domain

// TaskKind distinguishes gated internship tasks from ungated homework.
type TaskKind string

const (
	TaskKindHomework   TaskKind = "homework"
	TaskKindInternship TaskKind = "internship"
)

// Valid reports whether k is a known kind.
func (k TaskKind) Valid() bool {
	return k == TaskKindHomework || k == TaskKindInternship
}

// DefaultAllowedRadiusMeters applies when a window carries no radius.
const DefaultAllowedRadiusMeters = 500.0

// TaskWindow is the read-only scheduling and location constraint of a task.
type TaskWindow struct {
	Kind                TaskKind  `json:"kind"`
	ScheduledDate       *Date     `json:"scheduled_date,omitempty"`
	Target              *GeoPoint `json:"target,omitempty"`
	AllowedRadiusMeters float64   `json:"allowed_radius_meters"`
}

// ReasonCode explains an EligibilityVerdict.
type ReasonCode string

const (
	ReasonNotApplicable        ReasonCode = "NOT_APPLICABLE"
	ReasonOK                   ReasonCode = "OK"
	ReasonNoLocationConfigured ReasonCode = "NO_LOCATION_CONFIGURED"
	ReasonWrongDate            ReasonCode = "WRONG_DATE"
	ReasonLocationNotAcquired  ReasonCode = "LOCATION_NOT_ACQUIRED"
	ReasonTooFar               ReasonCode = "TOO_FAR"
	ReasonGPSAccuracyTooLow    ReasonCode = "GPS_ACCURACY_TOO_LOW"
)

// EligibilityVerdict is computed fresh on every check.
type EligibilityVerdict struct {
	Allowed        bool       `json:"allowed"`
	Reason         ReasonCode `json:"reason_code"`
	DistanceMeters *float64   `json:"distance_meters,omitempty"`
	// DateOK is surfaced alongside distance problems for display.
	DateOK bool `json:"date_ok"`
}
