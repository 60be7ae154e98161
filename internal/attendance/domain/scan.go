package domain

// RejectReason identifies which validation gate refused a scan.
type RejectReason string

const (
	RejectMalformedCode    RejectReason = "malformed_code"
	RejectInvalidSignature RejectReason = "invalid_signature"
	RejectWrongCourse      RejectReason = "wrong_course"
	RejectNotEnrolled      RejectReason = "not_enrolled"
	RejectExpired          RejectReason = "expired"
	RejectSessionNotFound  RejectReason = "session_not_found"
	RejectAlreadyRecorded  RejectReason = "already_recorded"
)

// ScanState is the last gate a scan attempt passed.
type ScanState string

const (
	StateReceived           ScanState = "RECEIVED"
	StateDecoded            ScanState = "DECODED"
	StateCourseMatched      ScanState = "COURSE_MATCHED"
	StateEnrollmentVerified ScanState = "ENROLLMENT_VERIFIED"
	StateNotExpired         ScanState = "NOT_EXPIRED"
	StateNotDuplicate       ScanState = "NOT_DUPLICATE"
	StateAccepted           ScanState = "ACCEPTED"
	StateRejected           ScanState = "REJECTED"
)

// ScanResult is the structured outcome of one scan attempt. Rejections are results, not errors.
type ScanResult struct {
	Accepted bool
	Reason   RejectReason // empty when Accepted
	// Message is the user-facing explanation for Reason.
	Message string
	// LastState is the furthest gate passed before the outcome.
	LastState ScanState
	// Payload is set once decoding succeeded.
	Payload *Payload
	// Session is set once the session was resolved.
	Session *Session
	// Record is set when Accepted.
	Record *ScanRecord
}

// Outcome returns "accepted" or the reject reason; used as a metric attribute.
func (r *ScanResult) Outcome() string {
	if r == nil {
		return ""
	}
	if r.Accepted {
		return "accepted"
	}
	return string(r.Reason)
}

// State returns the terminal state of the attempt: ACCEPTED or REJECTED.
func (r *ScanResult) State() ScanState {
	if r != nil && r.Accepted {
		return StateAccepted
	}
	return StateRejected
}
