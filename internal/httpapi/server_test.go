package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-api/internal/chat"
	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/internal/ratelimit"
	"github.com/sells-group/intake-api/internal/store"
)

// stubStore implements the store methods the handlers touch.
type stubStore struct {
	store.Store

	emailExists    bool
	ipExists       bool
	mvpEmailExists bool
	domainCount    int
	createErr      error
	mergeErr       error
	decrementErr   error

	createdLead    *model.Lead
	createdMVP     *model.MVPLead
	mergedID       string
	merged         *model.ChatResponses
	briefURL       string
	monthlyDecs    int
}

func (s *stubStore) LeadEmailExists(context.Context, string) (bool, error) {
	return s.emailExists, nil
}

func (s *stubStore) LeadIPExists(context.Context, string) (bool, error) {
	return s.ipExists, nil
}

func (s *stubStore) CreateLead(_ context.Context, lead model.Lead) (*model.Lead, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	lead.ID = "lead-1"
	s.createdLead = &lead
	return &lead, nil
}

func (s *stubStore) MergeChatResponses(_ context.Context, id string, responses model.ChatResponses) error {
	if s.mergeErr != nil {
		return s.mergeErr
	}
	s.mergedID = id
	s.merged = &responses
	return nil
}

func (s *stubStore) CountLeadsByEmailDomain(context.Context, string) (int, error) {
	return s.domainCount, nil
}

func (s *stubStore) MVPLeadEmailExists(context.Context, string) (bool, error) {
	return s.mvpEmailExists, nil
}

func (s *stubStore) CreateMVPLead(_ context.Context, lead model.MVPLead) (*model.MVPLead, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	lead.ID = "mvp-1"
	s.createdMVP = &lead
	return &lead, nil
}

func (s *stubStore) SetMVPLeadBrief(_ context.Context, _ string, url string) error {
	s.briefURL = url
	return nil
}

func (s *stubStore) GetDailySpots(_ context.Context, date string, total int) (*model.SpotCount, error) {
	return &model.SpotCount{Period: date, Remaining: total, Total: total}, nil
}

func (s *stubStore) DecrementDailySpots(_ context.Context, date string) (*model.SpotCount, error) {
	if s.decrementErr != nil {
		return nil, s.decrementErr
	}
	return &model.SpotCount{Period: date, Remaining: 9, Total: 10}, nil
}

func (s *stubStore) GetMonthlySpots(_ context.Context, month string, total int) (*model.SpotCount, error) {
	return &model.SpotCount{Period: month, Remaining: total, Total: total}, nil
}

func (s *stubStore) DecrementMonthlySpots(_ context.Context, month string) (*model.SpotCount, error) {
	s.monthlyDecs++
	if s.decrementErr != nil {
		return nil, s.decrementErr
	}
	return &model.SpotCount{Period: month, Remaining: 4, Total: 5}, nil
}

// stubEngine emits a fixed frame sequence.
type stubEngine struct {
	lastReq chat.TurnRequest
}

func (e *stubEngine) Turn(_ context.Context, req chat.TurnRequest, sink chat.FrameSink) error {
	e.lastReq = req
	if err := sink.Send(chat.TextFrame("hello")); err != nil {
		return err
	}
	if err := sink.Send(chat.MessageDoneFrame()); err != nil {
		return err
	}
	return sink.Send(chat.Frame{Type: chat.FrameDone})
}

// stubGuard returns a fixed verdict.
type stubGuard struct {
	result ratelimit.Result
}

func (g *stubGuard) Check(context.Context, string) ratelimit.Result {
	return g.result
}

// stubUploader records uploads or fails.
type stubUploader struct {
	err      error
	uploaded string
}

func (u *stubUploader) Upload(_ context.Context, filename, _ string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	io.Copy(io.Discard, r)
	u.uploaded = filename
	return "https://storage.googleapis.com/test/briefs/abc.pdf", nil
}

func newTestServer(st *stubStore, opts ...func(*Server)) *Server {
	srv := NewServer(Config{DailyTotal: 10, MonthlyTotal: 5}, st, &stubEngine{}, &stubGuard{result: ratelimit.Result{Allowed: true}}, nil)
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newTestServer(&stubStore{}).Routes()
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestChatStreamsFrames(t *testing.T) {
	h := newTestServer(&stubStore{}).Routes()
	rec := doJSON(t, h, http.MethodPost, "/chat", chat.TurnRequest{Action: chat.ActionStart})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `data: {"type":"text","content":"hello"}`)
	assert.Contains(t, body, `data: {"type":"message_done"}`)
	assert.Contains(t, body, `data: {"type":"done"}`)
}

func TestChatRateLimited(t *testing.T) {
	srv := NewServer(Config{}, &stubStore{}, &stubEngine{}, &stubGuard{result: ratelimit.Result{
		RetryAfter: 42 * time.Second,
		Reason:     "too many requests",
	}}, nil)
	rec := doJSON(t, srv.Routes(), http.MethodPost, "/chat", chat.TurnRequest{})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, float64(42), decodeBody(t, rec)["retryAfter"])
}

func TestChatBanned(t *testing.T) {
	srv := NewServer(Config{}, &stubStore{}, &stubEngine{}, &stubGuard{result: ratelimit.Result{
		Banned:     true,
		RetryAfter: 24 * time.Hour,
	}}, nil)
	rec := doJSON(t, srv.Routes(), http.MethodPost, "/chat", chat.TurnRequest{})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Header().Get("Content-Type"), "event-stream")
}

func validLeadBody() map[string]string {
	return map[string]string{
		"name": "Ada", "email": "ada@example.com", "idea": "bakery marketplace",
		"stage": "idea", "timeline": "asap", "budget": "1k-5k",
	}
}

func TestCreateLead(t *testing.T) {
	st := &stubStore{}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPost, "/leads", validLeadBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "lead-1", body["id"])
	assert.Equal(t, true, body["qualified"])
	require.NotNil(t, st.createdLead)
	assert.Equal(t, "ada@example.com", st.createdLead.Email)
}

func TestCreateLeadMissingFields(t *testing.T) {
	body := validLeadBody()
	delete(body, "email")
	delete(body, "budget")
	rec := doJSON(t, newTestServer(&stubStore{}).Routes(), http.MethodPost, "/leads", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing required fields: email, budget", decodeBody(t, rec)["error"])
}

func TestCreateLeadInvalidEmail(t *testing.T) {
	body := validLeadBody()
	body["email"] = "not-an-email"
	rec := doJSON(t, newTestServer(&stubStore{}).Routes(), http.MethodPost, "/leads", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLeadDuplicateEmail(t *testing.T) {
	rec := doJSON(t, newTestServer(&stubStore{emailExists: true}).Routes(), http.MethodPost, "/leads", validLeadBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateLeadDuplicateIP(t *testing.T) {
	rec := doJSON(t, newTestServer(&stubStore{ipExists: true}).Routes(), http.MethodPost, "/leads", validLeadBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateLeadRaceLosesToUniqueIndex(t *testing.T) {
	// The pre-check can pass and the insert still hit the unique index.
	st := &stubStore{createErr: store.ErrDuplicateEmail}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPost, "/leads", validLeadBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateLeadPersistsUnqualified(t *testing.T) {
	// The static form stores screened-out leads too.
	body := validLeadBody()
	body["timeline"] = model.TimelineExploring
	body["budget"] = model.BudgetZero
	st := &stubStore{}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPost, "/leads", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["qualified"])
	require.NotNil(t, st.createdLead)
	assert.False(t, st.createdLead.Qualified)
}

func TestPatchLead(t *testing.T) {
	st := &stubStore{}
	body := map[string]any{
		"id":             "lead-1",
		"chat_responses": map[string]string{"What do you want to build?": "an app"},
	}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPatch, "/leads", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lead-1", st.mergedID)
	require.NotNil(t, st.merged)
	assert.Equal(t, 1, st.merged.Len())
}

func TestPatchLeadUnknownID(t *testing.T) {
	st := &stubStore{mergeErr: store.ErrNotFound}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPatch, "/leads", map[string]any{"id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func mvpForm(t *testing.T, fields map[string]string, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("brief", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte("brief contents"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func validMVPFields() map[string]string {
	return map[string]string{
		"name": "Ada", "email": "ada@example.com", "idea": "bakery marketplace",
		"target_audience": "home bakers", "core_feature": "storefront",
		"mvp_type": "web_app", "timeline": "2weeks",
	}
}

func doMVP(t *testing.T, h http.Handler, fields map[string]string, fileName string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := mvpForm(t, fields, fileName)
	req := httptest.NewRequest(http.MethodPost, "/leads/mvp", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateMVPLead(t *testing.T) {
	st := &stubStore{}
	rec := doMVP(t, newTestServer(st).Routes(), validMVPFields(), "")

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, st.createdMVP)
	assert.Equal(t, "web_app", st.createdMVP.MVPType)
	assert.Equal(t, 1, st.monthlyDecs, "submission consumes a monthly spot")
	_, hasBrief := decodeBody(t, rec)["briefUrl"]
	assert.False(t, hasBrief)
}

func TestCreateMVPLeadDisposableDomain(t *testing.T) {
	fields := validMVPFields()
	fields["email"] = "ada@mailinator.com"
	rec := doMVP(t, newTestServer(&stubStore{}).Routes(), fields, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateMVPLeadMissingFields(t *testing.T) {
	fields := validMVPFields()
	delete(fields, "mvp_type")
	rec := doMVP(t, newTestServer(&stubStore{}).Routes(), fields, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMVPLeadDuplicate(t *testing.T) {
	rec := doMVP(t, newTestServer(&stubStore{mvpEmailExists: true}).Routes(), validMVPFields(), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateMVPLeadWithBrief(t *testing.T) {
	st := &stubStore{}
	up := &stubUploader{}
	srv := newTestServer(st, func(s *Server) { s.uploader = up })
	rec := doMVP(t, srv.Routes(), validMVPFields(), "brief.pdf")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "brief.pdf", up.uploaded)
	assert.Equal(t, "https://storage.googleapis.com/test/briefs/abc.pdf", st.briefURL)
	assert.Equal(t, st.briefURL, decodeBody(t, rec)["briefUrl"])
}

func TestCreateMVPLeadDisallowedBriefType(t *testing.T) {
	srv := newTestServer(&stubStore{}, func(s *Server) { s.uploader = &stubUploader{} })
	rec := doMVP(t, srv.Routes(), validMVPFields(), "malware.exe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMVPLeadUploadFailureNonFatal(t *testing.T) {
	st := &stubStore{}
	srv := newTestServer(st, func(s *Server) { s.uploader = &stubUploader{err: eris.New("bucket unavailable")} })
	rec := doMVP(t, srv.Routes(), validMVPFields(), "brief.pdf")

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, st.createdMVP, "lead must persist despite upload failure")
	_, hasBrief := decodeBody(t, rec)["briefUrl"]
	assert.False(t, hasBrief)
}

func TestGetSpots(t *testing.T) {
	rec := doJSON(t, newTestServer(&stubStore{}).Routes(), http.MethodGet, "/spots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(10), body["remaining"])
	assert.Equal(t, float64(10), body["total"])
}

func TestDecrementSpots(t *testing.T) {
	rec := doJSON(t, newTestServer(&stubStore{}).Routes(), http.MethodPost, "/spots/decrement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(9), decodeBody(t, rec)["remaining"])
}

func TestDecrementSpotsExhausted(t *testing.T) {
	st := &stubStore{decrementErr: store.ErrExhausted}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPost, "/spots/decrement", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecrementSpotsMissingPeriod(t *testing.T) {
	st := &stubStore{decrementErr: store.ErrNotFound}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPost, "/spots/decrement", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonthlySpots(t *testing.T) {
	rec := doJSON(t, newTestServer(&stubStore{}).Routes(), http.MethodGet, "/spots/mvp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), decodeBody(t, rec)["total"])
}

func TestCheckEmail(t *testing.T) {
	st := &stubStore{emailExists: true, domainCount: 3}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPost, "/check-email", map[string]string{"email": "ada@example.com"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, true, body["domainCapReached"])
}

func TestCheckEmailUnderCap(t *testing.T) {
	st := &stubStore{domainCount: 2}
	rec := doJSON(t, newTestServer(st).Routes(), http.MethodPost, "/check-email", map[string]string{"email": "new@example.com"})

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["exists"])
	assert.Equal(t, false, body["domainCapReached"])
}

func TestCheckEmailMissing(t *testing.T) {
	rec := doJSON(t, newTestServer(&stubStore{}).Routes(), http.MethodPost, "/check-email", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, validEmail("ada@example.com"))
	assert.True(t, validEmail("a.b+tag@sub.example.co"))
	assert.False(t, validEmail("not-an-email"))
	assert.False(t, validEmail("a@b"))
	assert.False(t, validEmail("Ada <ada@example.com>"))
	assert.False(t, validEmail(""))
}

func TestClientIP(t *testing.T) {
	cases := map[string]string{
		"192.0.2.7:52011":   "192.0.2.7",
		"192.0.2.7":         "192.0.2.7",
		"[2001:db8::1]:443": "2001:db8::1",
		"2001:db8::1":       "2001:db8::1",
	}
	for remote, want := range cases {
		r := httptest.NewRequest(http.MethodPost, "/leads", nil)
		r.RemoteAddr = remote
		got := clientIP(r)
		require.NotNil(t, got, remote)
		assert.Equal(t, want, *got, remote)
	}

	bare := httptest.NewRequest(http.MethodPost, "/leads", nil)
	bare.RemoteAddr = ""
	assert.Nil(t, clientIP(bare))
}

func TestCreateLeadKeepsIPv6Address(t *testing.T) {
	st := &stubStore{}
	h := newTestServer(st).Routes()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(validLeadBody()))
	req := httptest.NewRequest(http.MethodPost, "/leads", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "2001:db8::1"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, st.createdLead)
	require.NotNil(t, st.createdLead.IPAddress)
	assert.Equal(t, "2001:db8::1", *st.createdLead.IPAddress)
}
