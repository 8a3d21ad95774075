package lasend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/lasen/correction"
)

func testServer(t *testing.T, m *fakeModel) (*Service, *httptest.Server) {
	t.Helper()
	svc := testService(t, m)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(svc.Handler(ctx))
	t.Cleanup(srv.Close)
	return svc, srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHTTPCorrect(t *testing.T) {
	_, srv := testServer(t, &fakeModel{})

	resp, out := post(t, srv.URL+"/api/correct", `{"text":"انا هاذا"}`)
	if resp.StatusCode != 200 || out["correctedText"] != "أنا هذا" {
		t.Fatalf("correct: %d %v", resp.StatusCode, out)
	}
	if resp.Header.Get("X-Trace-ID") == "" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("missing trace or security headers: %v", resp.Header)
	}

	resp, out = post(t, srv.URL+"/api/correct", `{}`)
	if resp.StatusCode != 400 || out["error"] != "Text is required" {
		t.Errorf("missing text: %d %v", resp.StatusCode, out)
	}

	resp, out = post(t, srv.URL+"/api/correct", `{"text":`)
	if resp.StatusCode != 400 || out["error"] != "Invalid JSON in request body" {
		t.Errorf("bad json: %d %v", resp.StatusCode, out)
	}
}

func TestHTTPCorrectProviderError(t *testing.T) {
	_, srv := testServer(t, &fakeModel{err: io.ErrUnexpectedEOF})
	resp, out := post(t, srv.URL+"/api/correct", `{"text":"نص"}`)
	if resp.StatusCode != 500 || out["error"] == nil {
		t.Errorf("provider error: %d %v", resp.StatusCode, out)
	}
}

func TestHTTPDialect(t *testing.T) {
	_, srv := testServer(t, &fakeModel{convert: "شلونك"})

	resp, out := post(t, srv.URL+"/api/dialect", `{"text":"كيف حالك","dialect":"GULF"}`)
	if resp.StatusCode != 200 || out["convertedText"] != "شلونك" {
		t.Fatalf("dialect: %d %v", resp.StatusCode, out)
	}

	resp, out = post(t, srv.URL+"/api/dialect", `{"text":"كيف حالك","dialect":"klingon"}`)
	if resp.StatusCode != 400 || out["receivedDialect"] != "klingon" {
		t.Fatalf("invalid dialect: %d %v", resp.StatusCode, out)
	}
	valid, _ := out["validDialects"].([]any)
	if len(valid) != 4 {
		t.Errorf("validDialects: %v", out["validDialects"])
	}

	resp, _ = post(t, srv.URL+"/api/dialect", `{"text":"كيف حالك"}`)
	if resp.StatusCode != 400 {
		t.Errorf("missing dialect: %d", resp.StatusCode)
	}
}

func TestHTTPValidate(t *testing.T) {
	m := &fakeModel{validation: "```json\n{\"incorrectWords\":[{\"word\":\"انا\",\"startIndex\":0,\"endIndex\":3},{\"word\":\"bad\"}]}\n```"}
	_, srv := testServer(t, m)

	resp, err := http.Post(srv.URL+"/api/validate", "application/json", strings.NewReader(`{"text":"انا هنا"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out correction.ValidateResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != 200 || !out.Success || len(out.IncorrectWords) != 1 || out.IncorrectWords[0].Word != "انا" {
		t.Errorf("validate: %d %+v", resp.StatusCode, out)
	}

	m.validation = "nonsense"
	r2, raw := post(t, srv.URL+"/api/validate", `{"text":"انا هنا"}`)
	words, isList := raw["incorrectWords"].([]any)
	if r2.StatusCode != 200 || !isList || len(words) != 0 {
		t.Errorf("garbage: %d %v", r2.StatusCode, raw)
	}

	r3, raw := post(t, srv.URL+"/api/validate", `{"text":"  \n "}`)
	if r3.StatusCode != http.StatusBadRequest || raw["error"] != "Text is required" {
		t.Errorf("blank: %d %v", r3.StatusCode, raw)
	}
}

func TestHTTPCorrectionsHistory(t *testing.T) {
	_, srv := testServer(t, &fakeModel{})

	resp, out := post(t, srv.URL+"/api/corrections", `{"originalText":"انا","correctedText":"أنا"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record: %d %v", resp.StatusCode, out)
	}
	resp, _ = post(t, srv.URL+"/api/corrections", `{"originalText":"x","correctedText":"y","source":"web"}`)
	if resp.StatusCode != 400 {
		t.Errorf("bad source: %d", resp.StatusCode)
	}

	res, err := http.Get(srv.URL + "/api/corrections?page=1&limit=abc")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var h History
	json.NewDecoder(res.Body).Decode(&h)
	if !h.Success || h.Total != 1 || h.Count != 1 || h.Pages != 1 || h.Data[0].Source != correction.SourceExtension {
		t.Errorf("history: %+v", h)
	}
}

func TestHTTPHealthAndNotFound(t *testing.T) {
	_, srv := testServer(t, &fakeModel{})

	res, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]string
	json.NewDecoder(res.Body).Decode(&out)
	res.Body.Close()
	if out["status"] != "healthy" || out["timestamp"] == "" {
		t.Errorf("health: %v", out)
	}

	res, err = http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != 404 {
		t.Errorf("not found: %d", res.StatusCode)
	}
}

func TestHTTPBodyLimit(t *testing.T) {
	svc := testService(t, &fakeModel{})
	svc.cfg.MaxBodyBytes = 1024
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(svc.Handler(ctx))
	defer srv.Close()
	big := `{"text":"` + strings.Repeat("ا", 2048) + `"}`
	resp, err := http.Post(srv.URL+"/api/correct", "application/json", bytes.NewBufferString(big))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status: %d, want 413", resp.StatusCode)
	}
}

func TestHTTPCORSPreflight(t *testing.T) {
	_, srv := testServer(t, &fakeModel{})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/correct", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	req.Header.Set("Access-Control-Request-Method", "POST")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent || res.Header.Get("Access-Control-Allow-Origin") != "chrome-extension://abc" {
		t.Errorf("preflight: %d %v", res.StatusCode, res.Header)
	}
}
