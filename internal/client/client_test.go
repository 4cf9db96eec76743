package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/httpapi"
	"github.com/abhisek/psytest/internal/kv"
	"github.com/abhisek/psytest/internal/ratelimit"
	"github.com/abhisek/psytest/internal/resultcache"
	"github.com/abhisek/psytest/internal/session"
	"github.com/abhisek/psytest/internal/store"
	"github.com/abhisek/psytest/internal/submit"
	"github.com/abhisek/psytest/internal/testtype"
)

func newServer(t *testing.T) (*Client, *store.Store) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := store.Open(fmt.Sprintf("file:client_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg, cat, err := testtype.Builtin()
	require.NoError(t, err)
	cache := kv.NewMemory(nil)
	svc, err := submit.New(submit.Options{
		Catalog:     cat,
		Descriptors: reg,
		Sessions:    st.Sessions(),
		Feedback:    st.Feedback(),
		Cache:       resultcache.New(cache, submit.StoreLoader(st.Sessions()), 0, nil),
	})
	require.NoError(t, err)
	h, err := httpapi.NewRouter(httpapi.Options{
		Service:         svc,
		Catalog:         cat,
		Limiter:         ratelimit.New(cache, ratelimit.DefaultRules(), nil, nil),
		Cache:           cache,
		RequiredHeaders: []string{"User-Agent"},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, srv.Client())
	require.NoError(t, err)
	return c, st
}

func TestMachineSubmitsOverHTTP(t *testing.T) {
	c, st := newServer(t)
	ctx := context.Background()
	reg, cat, err := testtype.Builtin()
	require.NoError(t, err)

	m := session.NewMachine(session.Options{Descriptors: reg, Submitter: c})
	qs, err := cat.Questions("phq9", catalog.DefaultLanguage)
	require.NoError(t, err)
	sess, err := m.StartTest("phq9", qs)
	require.NoError(t, err)
	for _, q := range qs {
		require.NoError(t, m.SubmitAnswer(q.ID, answer.Number(2)))
	}

	res, err := m.EndTest(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, res.SessionID)
	assert.Equal(t, 18.0, res.TotalScore)
	assert.Equal(t, "moderately_severe", res.Severity)
	assert.False(t, res.Placeholder)

	rec, err := st.Sessions().Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, rec.Answers, 9)

	// Resubmitting the same session returns the stored result.
	again, err := c.Submit(ctx, session.Submission{SessionID: sess.ID, TestType: "phq9", Answers: rec.Answers})
	require.NoError(t, err)
	assert.Equal(t, res.TotalScore, again.TotalScore)
}

func TestTestsAndFeedback(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	tests, err := c.Tests(ctx)
	require.NoError(t, err)
	assert.Len(t, tests, 5)

	fb, err := c.Feedback(ctx, submit.FeedbackRequest{Rating: 4, Comment: "clear questions"})
	require.NoError(t, err)
	assert.NotEmpty(t, fb.ID)
}

func TestAPIError(t *testing.T) {
	c, _ := newServer(t)
	_, err := c.Result(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestNew_RejectsNonHTTP(t *testing.T) {
	_, err := New("ftp://example.com", nil)
	assert.Error(t, err)
}
