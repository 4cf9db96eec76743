package submit

import (
	"context"

	"github.com/abhisek/psytest/internal/result"
	"github.com/abhisek/psytest/internal/session"
)

// Local submits completed sessions to an in-process Service.
type Local struct {
	Service *Service
}

var _ session.Submitter = Local{}

// Submit implements session.Submitter. The session id is reused so a
// retried EndTest returns the stored result. The machine's tally is passed
// along so the service can flag lookup table drift.
func (l Local) Submit(ctx context.Context, sub session.Submission) (result.TestResult, error) {
	req := Request{
		SessionID:  sub.SessionID,
		TestType:   sub.TestType,
		Answers:    sub.Answers,
		DurationMs: sub.Duration.Milliseconds(),
	}
	if sub.Tally.Values != nil {
		tally := sub.Tally
		req.Tally = &tally
	}
	return l.Service.Submit(ctx, req, "")
}
