package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/your-org/mpr/internal/errors"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/review"
	"github.com/your-org/mpr/internal/scan"
	"github.com/your-org/mpr/pkg/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubScanner struct {
	got scan.Request
	res *scan.Result
	err error
}

func (s *stubScanner) Run(_ context.Context, req scan.Request) (*scan.Result, error) {
	s.got = req
	return s.res, s.err
}

type stubReviewer struct {
	calls    []string
	who      models.Initiator
	decision *review.Decision
	history  []models.ScanAttempt
	err      error
}

func (s *stubReviewer) Confirm(_ context.Context, _ uuid.UUID, who models.Initiator) (*review.Decision, error) {
	s.calls = append(s.calls, "confirm")
	s.who = who
	return s.decision, s.err
}

func (s *stubReviewer) Reject(_ context.Context, _ uuid.UUID, who models.Initiator) (*review.Decision, error) {
	s.calls = append(s.calls, "reject")
	s.who = who
	return s.decision, s.err
}

func (s *stubReviewer) History(context.Context, uuid.UUID) ([]models.ScanAttempt, error) {
	return s.history, s.err
}

func do(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func matchRouter(s Scanner) *gin.Engine {
	r := gin.New()
	r.POST("/v1/match", NewMatchHandler(s, 0).Match)
	return r
}

func TestMatch_Success(t *testing.T) {
	caseID := uuid.New()
	attemptID := uuid.New()
	s := &stubScanner{res: &scan.Result{
		TotalImagesScanned: 42,
		Matches: []models.MatchCandidate{{
			AttemptID: &attemptID, ImageName: "cam/1.jpg", ImageURL: "https://cdn/1.jpg",
			Confidence: 88.5, MissingPersonID: caseID, Band: models.BandHigh,
		}},
	}}
	officer := uuid.New()

	w := do(matchRouter(s), http.MethodPost, "/v1/match",
		map[string]string{"missingPersonId": caseID.String(), "imageUrl": "https://example.com/q.jpg"},
		map[string]string{"X-Officer-ID": officer.String()})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", w.Code, w.Body)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != true || resp["totalImagesScanned"] != float64(42) {
		t.Errorf("unexpected envelope: %v", resp)
	}
	match := resp["matches"].([]any)[0].(map[string]any)
	for _, key := range []string{"confidence", "matchedImageUrl", "matchedImageName", "candidateId", "band"} {
		if _, ok := match[key]; !ok {
			t.Errorf("match is missing %q: %v", key, match)
		}
	}

	if s.got.Trigger != models.TriggerImage || s.got.Initiator.IsSystem() || *s.got.Initiator.PoliceID != officer {
		t.Errorf("unexpected scan request: %+v", s.got)
	}
}

func TestMatch_WithoutOfficerRunsAsSystem(t *testing.T) {
	s := &stubScanner{res: &scan.Result{}}
	w := do(matchRouter(s), http.MethodPost, "/v1/match",
		map[string]string{"missingPersonId": uuid.NewString(), "imageUrl": "reports/q.jpg"}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !s.got.Initiator.IsSystem() {
		t.Errorf("expected system initiator, got %s", s.got.Initiator)
	}
	var resp dto.MatchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Success || resp.Matches == nil || len(resp.Matches) != 0 {
		t.Errorf("zero matches must still be a success with an empty list: %+v", resp)
	}
}

func TestMatch_Failures(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		headers  map[string]string
		scanErr  error
		wantCode int
	}{
		{"missing fields", map[string]string{"imageUrl": "x"}, nil, nil, http.StatusBadRequest},
		{"bad officer header", map[string]string{"missingPersonId": uuid.NewString(), "imageUrl": "x"},
			map[string]string{"X-Officer-ID": "nope"}, nil, http.StatusBadRequest},
		{"corpus unavailable", map[string]string{"missingPersonId": uuid.NewString(), "imageUrl": "x"}, nil,
			apperrors.NewCorpusUnavailableError("list dataset bucket", errors.New("refused")), http.StatusServiceUnavailable},
		{"query fetch failed", map[string]string{"missingPersonId": uuid.NewString(), "imageUrl": "x"}, nil,
			apperrors.NewFetchError("fetch query image", nil), http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &stubScanner{res: &scan.Result{}, err: tc.scanErr}
			w := do(matchRouter(s), http.MethodPost, "/v1/match", tc.body, tc.headers)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d; want %d (body %s)", w.Code, tc.wantCode, w.Body)
			}
			var resp dto.MatchResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Success || resp.Matches == nil || len(resp.Matches) != 0 || resp.Error == "" {
				t.Errorf("unexpected failure envelope: %+v", resp)
			}
		})
	}
}

func reviewRouter(rv Reviewer) *gin.Engine {
	h := NewReviewHandler(rv)
	r := gin.New()
	r.POST("/v1/matches/:id/confirm", h.Confirm)
	r.POST("/v1/matches/:id/reject", h.Reject)
	r.GET("/v1/cases/:id/attempts", h.History)
	return r
}

func TestReview_Decisions(t *testing.T) {
	caseID := uuid.New()
	officer := uuid.New()
	headers := map[string]string{"X-Officer-ID": officer.String()}

	for _, action := range []string{"confirm", "reject"} {
		t.Run(action, func(t *testing.T) {
			rv := &stubReviewer{decision: &review.Decision{CaseID: caseID, Status: models.CaseStatusFound}}
			w := do(reviewRouter(rv), http.MethodPost, "/v1/matches/"+uuid.NewString()+"/"+action, nil, headers)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; body %s", w.Code, w.Body)
			}
			var resp dto.ReviewResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if !resp.Success || resp.CaseID != caseID || resp.Status != "found" {
				t.Errorf("unexpected response: %+v", resp)
			}
			if len(rv.calls) != 1 || rv.calls[0] != action || *rv.who.PoliceID != officer {
				t.Errorf("reviewer calls = %v by %s", rv.calls, rv.who)
			}
		})
	}
}

func TestReview_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		headers  map[string]string
		err      error
		wantCode int
	}{
		{"bad id", "/v1/matches/abc/confirm", map[string]string{"X-Officer-ID": uuid.NewString()}, nil, http.StatusBadRequest},
		{"no officer", "/v1/matches/" + uuid.NewString() + "/confirm", nil, nil, http.StatusBadRequest},
		{"already reviewed", "/v1/matches/" + uuid.NewString() + "/reject", map[string]string{"X-Officer-ID": uuid.NewString()},
			apperrors.NewConflictError("already reviewed", nil), http.StatusConflict},
		{"not found", "/v1/matches/" + uuid.NewString() + "/confirm", map[string]string{"X-Officer-ID": uuid.NewString()},
			apperrors.NewNotFoundError("candidate not found", nil), http.StatusNotFound},
		{"confirmation failed", "/v1/matches/" + uuid.NewString() + "/confirm", map[string]string{"X-Officer-ID": uuid.NewString()},
			apperrors.NewConfirmationFailedError("set case status to found", nil), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rv := &stubReviewer{err: tc.err}
			w := do(reviewRouter(rv), http.MethodPost, tc.path, nil, tc.headers)
			if w.Code != tc.wantCode {
				t.Fatalf("status = %d; want %d", w.Code, tc.wantCode)
			}
			var resp dto.ReviewResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Success || resp.Error == "" {
				t.Errorf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestReview_History(t *testing.T) {
	caseID := uuid.New()
	rv := &stubReviewer{history: []models.ScanAttempt{
		{ID: uuid.New(), Initiator: models.System(), ImageURL: "r.jpg", MissingPersonID: &caseID, Action: models.ActionAutomatedMatch},
	}}

	w := do(reviewRouter(rv), http.MethodGet, "/v1/cases/"+caseID.String()+"/attempts", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp dto.AttemptListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Attempts) != 1 || resp.Attempts[0].InitiatorKind != "system" || resp.Attempts[0].Action != "automated_match" {
		t.Errorf("unexpected history: %+v", resp)
	}
}

type stubCases struct {
	cases []models.MissingPersonCase
	err   error
}

func (s stubCases) ListOpenCasesWithPhoto(context.Context) ([]models.MissingPersonCase, error) {
	return s.cases, s.err
}

type stubPublisher struct {
	tasks []models.ScanTask
	fail  map[uuid.UUID]bool
}

func (s *stubPublisher) PublishScanTask(_ context.Context, task models.ScanTask) error {
	if s.fail[task.MissingPersonID] {
		return errors.New("nats down")
	}
	s.tasks = append(s.tasks, task)
	return nil
}

func TestSweep_EnqueuesOpenCases(t *testing.T) {
	photo := "reports/a.jpg"
	bad := uuid.New()
	cases := stubCases{cases: []models.MissingPersonCase{
		{ID: uuid.New(), PhotoURL: &photo},
		{ID: bad, PhotoURL: &photo},
		{ID: uuid.New(), PhotoURL: &photo},
	}}
	pub := &stubPublisher{fail: map[uuid.UUID]bool{bad: true}}

	r := gin.New()
	r.POST("/v1/sweeps", NewSweepHandler(cases, pub).Start)
	w := do(r, http.MethodPost, "/v1/sweeps", nil, nil)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	var resp dto.SweepResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Enqueued != 2 || resp.Failed != 1 {
		t.Errorf("unexpected sweep response: %+v", resp)
	}
	for _, task := range pub.tasks {
		if task.Trigger != models.TriggerSweep || task.ImageRef != photo || task.TaskID == uuid.Nil {
			t.Errorf("unexpected task: %+v", task)
		}
	}
}

func TestSweep_ListFailure(t *testing.T) {
	r := gin.New()
	r.POST("/v1/sweeps", NewSweepHandler(stubCases{err: errors.New("db down")}, &stubPublisher{}).Start)
	if w := do(r, http.MethodPost, "/v1/sweeps", nil, nil); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want 500", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("nats not connected") })

	tests := []struct {
		name string
		nats Pinger
		want int
	}{
		{"all healthy", ok, http.StatusOK},
		{"nats down", down, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/readyz", NewSystemHandler(ok, ok, tc.nats).Readyz)
			if w := do(r, http.MethodGet, "/readyz", nil, nil); w.Code != tc.want {
				t.Errorf("status = %d; want %d", w.Code, tc.want)
			}
		})
	}
}
