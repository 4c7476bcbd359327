package lifecycle

// Step names one stage of the booking lifecycle sequence. Steps execute in
// strict order per booking, each as its own durable task; the queue engine
// persists scheduled steps across process restarts.
type Step string

const (
	StepConfirm         Step = "confirm"
	StepReminder        Step = "reminder"          // start - 48h
	StepRoomSetup       Step = "room_setup"        // start - 15m
	StepSessionStart    Step = "session_start"     // start
	StepAttendanceCheck Step = "attendance_check"  // start + grace
	StepRecoveryCheck   Step = "recovery_check"    // attendance + 5m
	StepComplete        Step = "complete"          // end of session
	StepEarnings        Step = "earnings"
	StepSurvey          Step = "survey"            // complete + 24h
)

// Critical reports whether the step mutates booking or money state. Critical
// steps run on the critical queue with a deeper retry budget; a failure
// after exhausting it surfaces in the archived-task list for operators.
// Non-critical steps are notification-only and degrade silently.
func (s Step) Critical() bool {
	switch s {
	case StepSessionStart, StepAttendanceCheck, StepRecoveryCheck, StepComplete, StepEarnings:
		return true
	}
	return false
}
