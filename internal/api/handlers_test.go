package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"example.com/enrollment/internal/auth"
	"example.com/enrollment/internal/domain"
)

func newTestMux(t *testing.T, opts ...domain.StoreOption) (*http.ServeMux, *domain.EnrollmentStore) {
	t.Helper()
	store := domain.NewEnrollmentStore([]domain.Activity{
		{
			Name:            "Chess Club",
			Description:     "Learn strategies and compete in chess tournaments",
			Schedule:        "Fridays, 3:30 PM - 5:00 PM",
			MaxParticipants: 12,
			Participants:    []string{"michael@mergington.edu"},
		},
		{
			Name:            "Programming Class",
			Description:     "Learn programming fundamentals and build software projects",
			Schedule:        "Tuesdays and Thursdays, 3:30 PM - 4:30 PM",
			MaxParticipants: 1,
			Participants:    []string{"emma@mergington.edu"},
		},
	}, opts...)
	quiet := log.New(io.Discard, "", 0)
	service := domain.NewService(store, nil, domain.WithLogger(quiet))
	mux := http.NewServeMux()
	NewHandler(service, WithLogger(quiet)).RegisterRoutes(mux)
	return mux, store
}

func do(mux http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func activityURL(name, action, email string) string {
	return "/activities/" + url.PathEscape(name) + "/" + action + "?email=" + url.QueryEscape(email)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestListActivities(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := do(mux, http.MethodGet, "/activities")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var resp ActivitiesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	chess, ok := resp["Chess Club"]
	if !ok {
		t.Fatalf("Chess Club missing from %v", resp)
	}
	if chess.MaxParticipants != 12 || chess.SpotsLeft != 11 {
		t.Fatalf("unexpected capacity view: %+v", chess)
	}
	if len(chess.Participants) != 1 || chess.Participants[0] != "michael@mergington.edu" {
		t.Fatalf("unexpected participants: %v", chess.Participants)
	}
	if resp["Programming Class"].SpotsLeft != 0 {
		t.Fatalf("expected full class to report 0 spots, got %d", resp["Programming Class"].SpotsLeft)
	}
}

func TestSignupThenDuplicate(t *testing.T) {
	mux, store := newTestMux(t)
	target := activityURL("Chess Club", "signup", "test.user@example.com")

	rr := do(mux, http.MethodPost, target)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != "Signed up test.user@example.com for Chess Club" || resp.Status != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !store.List()["Chess Club"].Has("test.user@example.com") {
		t.Fatalf("participant not stored")
	}

	rr = do(mux, http.MethodPost, target)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body["detail"] != "Student is already signed up" || body["type"] != "already_enrolled" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestSignupUnknownActivity(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := do(mux, http.MethodPost, activityURL("NoSuchActivity", "signup", "a@b.com"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if detail := decodeError(t, rr)["detail"]; detail != "Activity not found" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestSignupMissingEmail(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := do(mux, http.MethodPost, "/activities/Chess%20Club/signup?email=%20%20")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if kind := decodeError(t, rr)["type"]; kind != "invalid_request" {
		t.Fatalf("unexpected type %q", kind)
	}
}

func TestUnknownActivityWithBlankEmail(t *testing.T) {
	mux, _ := newTestMux(t)

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		action := "signup"
		if method == http.MethodDelete {
			action = "participants"
		}
		for _, email := range []string{"", "  "} {
			rr := do(mux, method, activityURL("Ghost Club", action, email))
			if rr.Code != http.StatusNotFound {
				t.Fatalf("%s %q: expected 404 got %d", method, email, rr.Code)
			}
			if detail := decodeError(t, rr)["detail"]; detail != "Activity not found" {
				t.Fatalf("%s %q: unexpected detail %q", method, email, detail)
			}
		}
	}
}

func TestSignupFullActivityWhenEnforced(t *testing.T) {
	mux, _ := newTestMux(t, domain.WithCapacityEnforcement())

	rr := do(mux, http.MethodPost, activityURL("Programming Class", "signup", "late@mergington.edu"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSignupFullActivityAllowedByDefault(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := do(mux, http.MethodPost, activityURL("Programming Class", "signup", "late@mergington.edu"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestUnregisterParticipant(t *testing.T) {
	mux, store := newTestMux(t)
	email := "leave.user@example.com"

	if rr := do(mux, http.MethodPost, activityURL("Programming Class", "signup", email)); rr.Code != http.StatusOK {
		t.Fatalf("signup: expected 200 got %d", rr.Code)
	}

	rr := do(mux, http.MethodDelete, activityURL("Programming Class", "participants", email))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Removed leave.user@example.com from Programming Class") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if store.List()["Programming Class"].Has(email) {
		t.Fatalf("participant still present after unregister")
	}
}

func TestUnregisterNotSignedUp(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := do(mux, http.MethodDelete, activityURL("Chess Club", "participants", "no.one@nowhere.example"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if detail := decodeError(t, rr)["detail"]; detail != "Student is not signed up for this activity" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rr = do(mux, http.MethodDelete, activityURL("Ghost Club", "participants", "no.one@nowhere.example"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if detail := decodeError(t, rr)["detail"]; detail != "Activity not found" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestUnsupportedMethods(t *testing.T) {
	mux, _ := newTestMux(t)

	cases := []struct {
		method, target, allow string
	}{
		{http.MethodPost, "/activities", http.MethodGet},
		{http.MethodGet, activityURL("Chess Club", "signup", "a@b.com"), http.MethodPost},
		{http.MethodPost, activityURL("Chess Club", "participants", "a@b.com"), http.MethodDelete},
	}
	for _, tc := range cases {
		rr := do(mux, tc.method, tc.target)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405 got %d", tc.method, tc.target, rr.Code)
		}
		if allow := rr.Header().Get("Allow"); allow != tc.allow {
			t.Fatalf("%s %s: expected Allow %q got %q", tc.method, tc.target, tc.allow, allow)
		}
	}

	if rr := do(mux, http.MethodGet, "/activities/Chess%20Club/unknown"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action got %d", rr.Code)
	}
}

func TestRootRedirectsToUI(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := do(mux, http.MethodGet, "/")
	if rr.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307 got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/static/index.html" {
		t.Fatalf("unexpected location %q", loc)
	}

	rr = do(mux, http.MethodGet, "/static/index.html")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Mergington High School") {
		t.Fatalf("static index not served: %d", rr.Code)
	}

	if rr := do(mux, http.MethodGet, "/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := do(mux, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rr.Code, rr.Body.String())
	}
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	h := LogRequests(log.New(&buf, "", 0))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/activities", nil))
	if !strings.HasPrefix(buf.String(), "GET /activities 418 ") {
		t.Fatalf("unexpected log line %q", buf.String())
	}
}

func newAuthMux(t *testing.T, logger *log.Logger) (*http.ServeMux, *auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier("test-secret", "mergington.identity")
	store := domain.NewEnrollmentStore([]domain.Activity{{Name: "Art Club", MaxParticipants: 15}})
	service := domain.NewService(store, nil, domain.WithLogger(log.New(io.Discard, "", 0)))
	mux := http.NewServeMux()
	NewHandler(service, WithLogger(logger), WithAuth(verifier)).RegisterRoutes(mux)
	return mux, verifier
}

func TestSignupLogsTokenSubject(t *testing.T) {
	var buf bytes.Buffer
	mux, verifier := newAuthMux(t, log.New(&buf, "", 0))
	token, err := verifier.Issue("staff-42", []string{auth.ScopeEnrollmentsWrite}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, activityURL("Art Club", "signup", "amy@mergington.edu"), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if !strings.Contains(buf.String(), "Signed up amy@mergington.edu for Art Club (subject=staff-42)") {
		t.Fatalf("unexpected audit log %q", buf.String())
	}
}

func TestAuthGuardsOnlyMembershipChanges(t *testing.T) {
	mux, verifier := newAuthMux(t, log.New(io.Discard, "", 0))

	if rr := do(mux, http.MethodGet, "/activities"); rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200 got %d", rr.Code)
	}

	rr := do(mux, http.MethodPost, activityURL("Art Club", "signup", "amy@mergington.edu"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("signup without token: expected 401 got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if body := decodeError(t, rr); body["type"] != "unauthorized" || body["detail"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	token, err := verifier.Issue("staff-7", []string{"catalog:read"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodDelete, activityURL("Art Club", "participants", "amy@mergington.edu"), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unregister without scope: expected 403 got %d", rr.Code)
	}
	if kind := decodeError(t, rr)["type"]; kind != "forbidden" {
		t.Fatalf("unexpected type %q", kind)
	}
}
