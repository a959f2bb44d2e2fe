package models

// SubmissionState is the terminal state of one flag submission. No retries
// are automatic; every state is final for that submission.
type SubmissionState string

const (
	SubmissionFormatInvalid     SubmissionState = "format_invalid"
	SubmissionUnauthorized      SubmissionState = "unauthorized"
	SubmissionProfileIncomplete SubmissionState = "profile_incomplete"
	SubmissionRateLimited       SubmissionState = "rate_limited"
	SubmissionUnknownChallenge  SubmissionState = "unknown_challenge"
	SubmissionIncorrect         SubmissionState = "incorrect"
	SubmissionAwarded           SubmissionState = "correct_awarded"
	SubmissionAlreadySolved     SubmissionState = "correct_already_solved"
)

// SubmissionResult is the outcome of one run of the scoring engine.
// Points is the challenge's nominal value, Awarded what the team actually
// received (zero on a resubmission by a team that already solved it).
type SubmissionResult struct {
	State   SubmissionState `json:"state"`
	Correct bool            `json:"correct"`
	Points  int             `json:"points"`
	Awarded int             `json:"awarded"`
	Message string          `json:"message"`
}
