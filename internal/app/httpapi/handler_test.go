package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/R3E-Network/pledge_layer/internal/app"
	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *app.Application) {
	t.Helper()
	application, err := app.New(app.Settings{Owner: "owner"}, app.Stores{}, nil)
	if err != nil {
		t.Fatalf("application: %v", err)
	}
	srv := httptest.NewServer(NewHandler(application, opts, nil))
	t.Cleanup(srv.Close)
	return srv, application
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandler_Health(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestHandler_GenerateAndList(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp := postJSON(t, srv.URL+"/accounts/alice/eggs", map[string]string{"wish": "health", "colour": "red"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var egg domain.Egg
	decodeBody(t, resp, &egg)
	if egg.Owner != "alice" || egg.Wish != "health" {
		t.Fatalf("unexpected egg: %+v", egg)
	}

	// A second generation for the same identity conflicts.
	resp = postJSON(t, srv.URL+"/accounts/alice/eggs", map[string]string{"wish": "wealth", "colour": "blue"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second generate should conflict: %d", resp.StatusCode)
	}
	resp.Body.Close()

	listResp, err := http.Get(srv.URL + "/accounts/alice/eggs")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var eggs []domain.Egg
	decodeBody(t, listResp, &eggs)
	if len(eggs) != 1 {
		t.Fatalf("expected one egg, got %d", len(eggs))
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	srv, application := newTestServer(t, Options{})

	// Validation: blank receiver.
	resp := postJSON(t, srv.URL+"/accounts/alice/eggs", map[string]string{"wish": "health", "colour": "red"})
	var egg domain.Egg
	decodeBody(t, resp, &egg)

	resp = postJSON(t, srv.URL+"/accounts/alice/eggs/transfer", map[string]interface{}{"receiver": " ", "egg": egg})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("validation should map to 400: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Not found: a descriptor matching nothing.
	missing := egg
	missing.Wish = "other"
	resp = postJSON(t, srv.URL+"/accounts/alice/eggs/edit", map[string]interface{}{"wish": "x", "colour": "y", "egg": missing})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("miss should map to 404: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unauthorized: close by a non-owner.
	resp = postJSON(t, srv.URL+"/close", map[string]string{"actor": "stranger"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unauthorized should map to 403: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Bad gateway: surrender with no funds on the rail.
	resp = postJSON(t, srv.URL+"/accounts/alice/eggs/surrender", map[string]interface{}{
		"payment": domain.SurrenderThreshold,
		"egg":     egg,
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("rail failure should map to 502: %d", resp.StatusCode)
	}
	resp.Body.Close()

	if !application.Access.IsOpen() {
		t.Fatalf("failed close must not change state")
	}
}

func TestHandler_SurrenderFlow(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp := postJSON(t, srv.URL+"/accounts/alice/eggs", map[string]string{"wish": "health", "colour": "red"})
	var egg domain.Egg
	decodeBody(t, resp, &egg)

	resp = postJSON(t, srv.URL+"/accounts/alice/gas/deposits", map[string]interface{}{"amount": domain.SurrenderThreshold})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("deposit failed: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/accounts/alice/eggs/surrender", map[string]interface{}{
		"payment": domain.SurrenderThreshold,
		"egg":     egg,
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("surrender failed: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The owner's balance now carries the payment.
	balResp, err := http.Get(srv.URL + "/accounts/owner/gas")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	var bal struct {
		Amount int64 `json:"amount"`
	}
	decodeBody(t, balResp, &bal)
	if bal.Amount != domain.SurrenderThreshold {
		t.Fatalf("owner balance should equal the payment: %d", bal.Amount)
	}
}

func TestHandler_UpkeepAndFulfill(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	// Not ready without eggs, and performing conflicts.
	readyResp, err := http.Get(srv.URL + "/accounts/alice/upkeep")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var check struct {
		Ready bool `json:"ready"`
	}
	decodeBody(t, readyResp, &check)
	if check.Ready {
		t.Fatalf("empty account should not be ready")
	}
	resp := postJSON(t, srv.URL+"/accounts/alice/upkeep", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("upkeep without eggs should conflict: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/accounts/alice/eggs", map[string]string{"wish": "health", "colour": "red"})
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/accounts/alice/upkeep", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upkeep failed: %d", resp.StatusCode)
	}
	var req struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &req)
	if req.ID == "" {
		t.Fatalf("request identifier missing")
	}

	resp = postJSON(t, srv.URL+"/randomness/requests/"+req.ID+"/fulfill", map[string]interface{}{"words": []uint64{42}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fulfill failed: %d", resp.StatusCode)
	}
	var fulfilled struct {
		Index int `json:"index"`
	}
	decodeBody(t, resp, &fulfilled)
	if fulfilled.Index != 2 {
		t.Fatalf("42 mod 10 should be 2, got %d", fulfilled.Index)
	}

	// Replayed fulfillment conflicts.
	resp = postJSON(t, srv.URL+"/randomness/requests/"+req.ID+"/fulfill", map[string]interface{}{"words": []uint64{7}})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replay should conflict: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandler_OracleToken(t *testing.T) {
	srv, _ := newTestServer(t, Options{OracleToken: "secret"})

	body := bytes.NewReader([]byte(`{"words":[1]}`))
	httpReq, err := http.NewRequest(http.MethodPost, srv.URL+"/randomness/requests/req-1/fulfill", body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("missing token should be rejected: %d", resp.StatusCode)
	}

	authed, err := http.NewRequest(http.MethodPost, srv.URL+"/randomness/requests/req-1/fulfill", bytes.NewReader([]byte(`{"words":[1]}`)))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	authed.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(authed)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	// The token passes; the unknown request then misses.
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 past the token gate: %d", resp.StatusCode)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2, nil)
	wrapped := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make(map[int]int)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		wrapped.ServeHTTP(rec, req)
		statuses[rec.Code]++
	}
	if statuses[http.StatusOK] != 2 {
		t.Fatalf("burst of 2 expected, got %v", statuses)
	}
	if statuses[http.StatusTooManyRequests] != 3 {
		t.Fatalf("overflow should be limited, got %v", statuses)
	}

	// A different client gets its own bucket.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh client should pass: %d", rec.Code)
	}
}

func TestHandler_Status(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var status struct {
		Owner     string                 `json:"owner"`
		Open      bool                   `json:"open"`
		Constants map[string]interface{} `json:"constants"`
	}
	decodeBody(t, resp, &status)
	if status.Owner != "owner" || !status.Open {
		t.Fatalf("unexpected status: %+v", status)
	}
	if fmt.Sprintf("%v", status.Constants["answer_space"]) != "10" {
		t.Fatalf("constants missing: %+v", status.Constants)
	}
}
