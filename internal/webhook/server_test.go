package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgricker/matrixrun/internal/history"
	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/webhook"
	"github.com/bgricker/matrixrun/internal/webhook/mocks"
)

const secret = "test-secret"

type recorder struct{ outcomes []string }

func (r *recorder) WebhookDelivery(event, outcome string) {
	r.outcomes = append(r.outcomes, event+":"+outcome)
}

func newServer(t *testing.T, maxBody int64) (*mocks.MockSubmitter, *mocks.MockRunLookup, *recorder, http.Handler) {
	t.Helper()
	ctrl := gomock.NewController(t)
	sub := mocks.NewMockSubmitter(ctrl)
	runs := mocks.NewMockRunLookup(ctrl)
	rec := &recorder{}
	srv := webhook.New(webhook.Config{Path: "/webhook", Secret: secret, MaxBodyBytes: maxBody}, webhook.Options{
		Submitter: sub,
		Runs:      runs,
		Recorder:  rec,
		Metrics:   http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "metrics here") }),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return sub, runs, rec, srv.Handler()
}

func deliver(h http.Handler, event string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDeliveryQueued(t *testing.T) {
	sub, _, rec, h := newServer(t, 1<<20)
	body := []byte(`{"ref":"refs/heads/main","commits":[{"modified":["ai/integrations/x.py"]}]}`)

	sub.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, d webhook.Delivery) (string, error) {
		assert.Equal(t, "delivery-1", d.ID)
		assert.Equal(t, "push", d.Event.Kind)
		assert.Equal(t, "main", d.Event.Branch)
		assert.Equal(t, []string{"ai/integrations/x.py"}, d.Event.ChangedPaths)
		return "run-123", nil
	})

	resp := deliver(h, "push", body, webhook.Signature(body, secret))
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	var got webhook.AcceptedResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "run-123", got.RunID)
	assert.Equal(t, webhook.StateQueued, got.Status)
	assert.Equal(t, []string{"push:queued"}, rec.outcomes)
}

func TestDeliveryRejected(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	tests := []struct {
		name      string
		maxBody   int64
		signature string
		status    int
	}{
		{"missing signature", 1 << 20, "", http.StatusForbidden},
		{"wrong secret", 1 << 20, webhook.Signature(body, "nope"), http.StatusForbidden},
		{"too large", 8, webhook.Signature(body, secret), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, rec, h := newServer(t, tt.maxBody)
			resp := deliver(h, "push", body, tt.signature)
			assert.Equal(t, tt.status, resp.Code)
			assert.Equal(t, []string{"push:rejected"}, rec.outcomes)
		})
	}
}

func TestDeliveryPingAndIgnored(t *testing.T) {
	_, _, rec, h := newServer(t, 1<<20)

	ping := []byte(`{"zen":"Keep it logically awesome."}`)
	resp := deliver(h, "ping", ping, webhook.Signature(ping, secret))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "pong")

	tag := []byte(`{"ref":"refs/tags/v1"}`)
	resp = deliver(h, "push", tag, webhook.Signature(tag, secret))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "ignored")

	bad := []byte(`{nope`)
	resp = deliver(h, "push", bad, webhook.Signature(bad, secret))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.Equal(t, []string{"ping:pong", "push:ignored", "push:rejected"}, rec.outcomes)
}

func TestDeliveryQueueFull(t *testing.T) {
	sub, _, _, h := newServer(t, 1<<20)
	body := []byte(`{"ref":"refs/heads/main"}`)
	sub.EXPECT().Submit(gomock.Any(), gomock.Any()).Return("", webhook.ErrQueueFull)

	resp := deliver(h, "push", body, webhook.Signature(body, secret))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestGetRun(t *testing.T) {
	sub, runs, _, h := newServer(t, 1<<20)

	runs.EXPECT().Get(gomock.Any(), "done").Return(report.Run{ID: "done", Status: report.RunSucceeded}, nil)
	runs.EXPECT().Get(gomock.Any(), "pending").Return(report.Run{}, history.ErrNotFound)
	runs.EXPECT().Get(gomock.Any(), "missing").Return(report.Run{}, history.ErrNotFound)
	sub.EXPECT().State("pending").Return(webhook.StateRunning, true)
	sub.EXPECT().State("missing").Return("", false)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	resp := get("/runs/done")
	require.Equal(t, http.StatusOK, resp.Code)
	var run report.Run
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &run))
	assert.Equal(t, report.RunSucceeded, run.Status)

	resp = get("/runs/pending")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), webhook.StateRunning)

	assert.Equal(t, http.StatusNotFound, get("/runs/missing").Code)
	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.True(t, strings.Contains(get("/metrics").Body.String(), "metrics here"))
}
