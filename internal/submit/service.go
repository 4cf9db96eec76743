// Package submit is the server-side submission pipeline: payload schema
// validation, per-answer format validation against the catalog, session
// persistence, scoring and result cache population. Feedback goes
// through the same schema stage plus the content filter.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/apperr"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/contentfilter"
	"github.com/abhisek/psytest/internal/dimension"
	"github.com/abhisek/psytest/internal/result"
	"github.com/abhisek/psytest/internal/resultcache"
	"github.com/abhisek/psytest/internal/store"
	"github.com/abhisek/psytest/internal/testtype"
)

// Request is a decoded submission payload.
type Request struct {
	SessionID  string              `json:"sessionId,omitempty"`
	TestType   string              `json:"testType,omitempty"`
	Language   string              `json:"language,omitempty"`
	Answers    []answer.TestAnswer `json:"answers"`
	UserInfo   map[string]any      `json:"userInfo,omitempty"`
	DurationMs int64               `json:"durationMs,omitempty"`

	// Tally is the dimension tally computed by an in-process caller. It is
	// never decoded from the wire; the server's own extraction is
	// authoritative and a mismatch is logged.
	Tally *dimension.Tally `json:"-"`
}

// Response is the public shape returned by the submit route.
type Response struct {
	SessionID       string             `json:"sessionId"`
	TestType        string             `json:"testType"`
	TotalScore      float64            `json:"totalScore"`
	Scores          map[string]float64 `json:"scores"`
	Severity        string             `json:"severity,omitempty"`
	Interpretation  string             `json:"interpretation"`
	Recommendations []string           `json:"recommendations"`
	CompletedAt     time.Time          `json:"completedAt"`
}

// NewResponse projects a stored result.
func NewResponse(res result.TestResult) Response {
	return Response{
		SessionID:       res.SessionID,
		TestType:        res.TestType,
		TotalScore:      res.TotalScore,
		Scores:          res.Scores,
		Severity:        res.Severity,
		Interpretation:  res.Analysis,
		Recommendations: res.Recommendations,
		CompletedAt:     res.Timestamp,
	}
}

// Descriptors resolves scoring descriptors by test type.
type Descriptors interface {
	Get(testType string) (*testtype.Descriptor, error)
}

// Options wires a Service.
type Options struct {
	Catalog     catalog.Catalog
	Descriptors Descriptors
	Sessions    store.SessionRepo
	Feedback    store.FeedbackRepo
	Cache       *resultcache.Cache
	Filter      *contentfilter.Filter
	Hasher      *IPHasher
	Clock       clock.Clock
	Logger      *slog.Logger

	// NewID generates ids when the client supplies none.
	NewID func() string
}

// Service runs the submission pipeline. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	opts  Options
	clock clock.Clock
	log   *slog.Logger
}

// New creates a Service. Catalog, Descriptors, Sessions and Cache are
// required; Filter defaults to contentfilter.Default.
func New(opts Options) (*Service, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("submit: catalog is required")
	case opts.Descriptors == nil:
		return nil, errors.New("submit: descriptors are required")
	case opts.Sessions == nil:
		return nil, errors.New("submit: session repository is required")
	case opts.Cache == nil:
		return nil, errors.New("submit: result cache is required")
	}
	if opts.Filter == nil {
		opts.Filter = contentfilter.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{opts: opts, clock: opts.Clock, log: opts.Logger.With("component", "submit")}, nil
}

// StoreLoader reads results from the session repository for the result
// cache. Sessions that exist but were never scored are not found.
func StoreLoader(sessions store.SessionRepo) resultcache.Loader {
	return resultcache.LoaderFunc(func(ctx context.Context, id string) (result.TestResult, error) {
		rec, err := sessions.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return result.TestResult{}, resultcache.ErrNotFound
		}
		if err != nil {
			return result.TestResult{}, &apperr.PersistenceError{Op: "load result", Err: err}
		}
		if rec.Result == nil {
			return result.TestResult{}, resultcache.ErrNotFound
		}
		return *rec.Result, nil
	})
}

// DecodeSubmission validates raw against SubmissionSchema and decodes it.
// testType comes from the route; a testType in the body must agree.
func DecodeSubmission(raw []byte, testType string) (Request, error) {
	if err := validatePayload(SubmissionSchema, raw); err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, apperr.Invalid("", "decode submission: %v", err)
	}
	if req.TestType != "" && req.TestType != testType {
		return Request{}, apperr.Invalid("testType", "%q does not match route test type %q", req.TestType, testType)
	}
	req.TestType = testType
	return req, nil
}

// Submit scores and stores req. clientIP is hashed before it is stored;
// an empty clientIP stores no hash.
//
// A request carrying the sessionId of an already scored session returns
// the stored result unchanged.
func (s *Service) Submit(ctx context.Context, req Request, clientIP string) (result.TestResult, error) {
	desc, err := s.opts.Descriptors.Get(req.TestType)
	if err != nil {
		return result.TestResult{}, &apperr.NotFoundError{Kind: "test type", ID: req.TestType}
	}
	if req.Language == "" {
		req.Language = catalog.DefaultLanguage
	}
	questions, err := s.opts.Catalog.Questions(req.TestType, req.Language)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownTestType) {
			return result.TestResult{}, &apperr.NotFoundError{Kind: "test type", ID: req.TestType}
		}
		return result.TestResult{}, fmt.Errorf("load questions: %w", err)
	}

	answers, err := s.checkAnswers(questions, req.Answers)
	if err != nil {
		return result.TestResult{}, err
	}

	rec, err := s.session(ctx, req, answers, clientIP)
	if err != nil {
		return result.TestResult{}, err
	}
	if rec.Result != nil {
		s.log.Info("returning stored result", "session_id", rec.ID, "test_type", rec.TestType)
		s.opts.Cache.Put(ctx, *rec.Result)
		return *rec.Result, nil
	}

	eval, err := desc.Evaluate(rec.Answers)
	if err != nil {
		return result.TestResult{}, err
	}
	if req.Tally != nil && !sameTally(*req.Tally, eval.Tally) {
		s.log.Warn("client tally differs from server extraction",
			"session_id", rec.ID,
			"test_type", rec.TestType,
			"client_table", req.Tally.Version,
			"server_table", eval.Tally.Version,
		)
	}
	now := s.clock.Now().UTC()
	res := result.FromScore(rec.TestType, rec.ID, eval.Result, now)
	if err := s.opts.Sessions.SetResult(ctx, rec.ID, res, now); err != nil {
		return result.TestResult{}, &apperr.PersistenceError{Op: "store result", Err: err}
	}
	s.opts.Cache.Put(ctx, res)

	s.log.Info("session scored",
		"session_id", rec.ID,
		"test_type", rec.TestType,
		"answers", len(rec.Answers),
		"unmapped", len(eval.Tally.Unmapped),
	)
	return res, nil
}

// sameTally reports whether two tallies came from the same table version
// and carry the same per-label values and counts.
func sameTally(a, b dimension.Tally) bool {
	return a.TestType == b.TestType &&
		a.Version == b.Version &&
		maps.Equal(a.Values, b.Values) &&
		maps.Equal(a.Counts, b.Counts)
}

// checkAnswers validates every answer against its question and returns
// them normalised, one per question with later entries winning. All
// violations are reported together.
func (s *Service) checkAnswers(questions []catalog.Question, in []answer.TestAnswer) ([]answer.TestAnswer, error) {
	byID := make(map[string]*catalog.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	var (
		violations []apperr.Violation
		out        []answer.TestAnswer
	)
	for i, a := range in {
		field := fmt.Sprintf("answers[%d]", i)
		q, ok := byID[a.QuestionID]
		if !ok {
			violations = append(violations, apperr.Violation{
				Field:   field + ".questionId",
				Message: fmt.Sprintf("unknown question %q", a.QuestionID),
			})
			continue
		}
		if err := answer.Validate(q, a.Value); err != nil {
			msg := err.Error()
			var fe *answer.FormatError
			if errors.As(err, &fe) {
				msg = fe.Message
			}
			violations = append(violations, apperr.Violation{Field: field + ".value", Message: msg})
			continue
		}
		a.Value = answer.Normalize(q, a.Value)
		if a.Timestamp.IsZero() {
			a.Timestamp = s.clock.Now().UTC()
		}
		out = answer.Upsert(out, a)
	}
	if len(violations) > 0 {
		return nil, &apperr.ValidationError{Violations: violations}
	}
	return out, nil
}

// session returns the existing record for a client-supplied id or
// persists a new one.
func (s *Service) session(ctx context.Context, req Request, answers []answer.TestAnswer, clientIP string) (*store.SessionRecord, error) {
	if req.SessionID != "" {
		existing, err := s.opts.Sessions.Get(ctx, req.SessionID)
		switch {
		case err == nil:
			if existing.TestType != req.TestType {
				return nil, apperr.Invalid("sessionId", "session belongs to test type %q", existing.TestType)
			}
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, &apperr.PersistenceError{Op: "load session", Err: err}
		}
	}

	id := req.SessionID
	if id == "" {
		id = s.opts.NewID()
	}
	rec := &store.SessionRecord{
		ID:         id,
		TestType:   req.TestType,
		Answers:    answers,
		DurationMs: req.DurationMs,
		UserInfo:   req.UserInfo,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if clientIP != "" && s.opts.Hasher != nil {
		rec.IPHash = s.opts.Hasher.Hash(clientIP)
	}
	if err := s.opts.Sessions.Create(ctx, rec); err != nil {
		return nil, &apperr.PersistenceError{Op: "create session", Err: err}
	}
	return rec, nil
}

// Result returns the scored result for a session, from the cache when
// possible.
func (s *Service) Result(ctx context.Context, sessionID string) (result.TestResult, error) {
	res, err := s.opts.Cache.Get(ctx, sessionID)
	if errors.Is(err, resultcache.ErrNotFound) {
		return result.TestResult{}, &apperr.NotFoundError{Kind: "result", ID: sessionID}
	}
	return res, err
}
