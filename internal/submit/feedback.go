package submit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/abhisek/psytest/internal/apperr"
	"github.com/abhisek/psytest/internal/contentfilter"
	"github.com/abhisek/psytest/internal/store"
)

// FeedbackRequest is a decoded feedback payload.
type FeedbackRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

// FeedbackResponse acknowledges stored feedback.
type FeedbackResponse struct {
	ID                 string                   `json:"id"`
	Severity           contentfilter.Severity   `json:"severity"`
	DetectedCategories []contentfilter.Category `json:"detectedCategories,omitempty"`
	Comment            string                   `json:"comment,omitempty"`
}

// DecodeFeedback validates raw against FeedbackSchema and decodes it.
func DecodeFeedback(raw []byte) (FeedbackRequest, error) {
	if err := validatePayload(FeedbackSchema, raw); err != nil {
		return FeedbackRequest{}, err
	}
	var req FeedbackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return FeedbackRequest{}, apperr.Invalid("", "decode feedback: %v", err)
	}
	return req, nil
}

// SubmitFeedback filters the comment and stores the feedback. Strict
// categories reject with *apperr.ContentPolicyError and nothing is
// stored; warn categories are redacted before storage.
func (s *Service) SubmitFeedback(ctx context.Context, req FeedbackRequest) (FeedbackResponse, error) {
	if s.opts.Feedback == nil {
		return FeedbackResponse{}, errors.New("submit: feedback repository is not configured")
	}
	checked, err := s.opts.Filter.Apply(req.Comment)
	if err != nil {
		s.log.Info("feedback rejected", "categories", checked.DetectedCategories)
		return FeedbackResponse{}, err
	}

	cats := make([]string, 0, len(checked.DetectedCategories))
	for _, c := range checked.DetectedCategories {
		cats = append(cats, string(c))
	}
	rec := &store.FeedbackRecord{
		ID:         s.opts.NewID(),
		SessionID:  req.SessionID,
		Rating:     req.Rating,
		Comment:    checked.FilteredContent,
		Severity:   string(checked.Severity),
		Categories: cats,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.opts.Feedback.Create(ctx, rec); err != nil {
		return FeedbackResponse{}, &apperr.PersistenceError{Op: "store feedback", Err: err}
	}
	return FeedbackResponse{
		ID:                 rec.ID,
		Severity:           checked.Severity,
		DetectedCategories: checked.DetectedCategories,
		Comment:            rec.Comment,
	}, nil
}
