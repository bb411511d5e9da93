package telemetry

// Span attribute keys shared by the services.
const (
	AttrTaskID        = "task.id"
	AttrSessionID     = "check.session"
	AttrGateState     = "gate.state"
	AttrCheckStarted  = "check.started"
	AttrLocationError = "location.error"
)
