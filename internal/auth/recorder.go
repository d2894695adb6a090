package auth

// Gate outcomes and rotation results reported to a Recorder.
const (
	OutcomeAuthorized = "authorized"
	OutcomeRotated    = "rotated"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"

	RotationSuccess  = "success"
	RotationLostRace = "lost_race"
	RotationFailed   = "failed"
)

// Recorder receives gate decisions and rotation results, typically for metrics.
type Recorder interface {
	GateDecision(outcome string)
	Rotation(result string)
}

type nopRecorder struct{}

func (nopRecorder) GateDecision(string) {}
func (nopRecorder) Rotation(string)     {}

func orNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
