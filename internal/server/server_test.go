package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"casegen/internal/app"
	"casegen/internal/ratelimit"
	"casegen/pkg/ai"
	"casegen/pkg/storage"
	"casegen/pkg/store"
	"casegen/pkg/usertoken"
)

func fakeGeneratorServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/generate":
			if body["stream"] == true {
				flusher := w.(http.Flusher)
				for _, chunk := range []string{"A\n", "B\n"} {
					fmt.Fprint(w, chunk)
					flusher.Flush()
				}
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"test_cases": "ID: TC-01\npaso 1"})
		case "/generate-project":
			_ = json.NewEncoder(w).Encode(map[string]string{"test_cases": "ID: TC-01\nID: TC-02"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, cfgFns ...func(*Config)) *httptest.Server {
	t.Helper()
	gen := fakeGeneratorServer(t)
	tokens, err := usertoken.NewManager(usertoken.Config{Secret: "test-secret", TTL: time.Hour}, usertoken.NewMemoryRevoker())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := Config{
		App:    app.New(store.NewMemoryStore(), storage.NewMemoryObjectStore(), ai.NewClient(gen.URL)),
		Tokens: tokens,
	}
	for _, fn := range cfgFns {
		fn(&cfg)
	}
	srv := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signupUser(t *testing.T, baseURL, email string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, baseURL+"/api/auth/signup", "", map[string]string{
		"email":     email,
		"password":  "s3cr3t-pass",
		"firstName": "Ana",
		"lastName":  "Prueba",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &out)
	if out.Token == "" {
		t.Fatalf("signup returned no token")
	}
	return out.Token
}

func uploadProjectBody(t *testing.T, name string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", name)
	_ = mw.WriteField("description", "modulo de facturas")
	fw, err := mw.CreateFormFile("file", "requisitos.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = io.WriteString(fw, strings.Repeat("El sistema debe permitir registrar facturas. ", 10))
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv.URL, "qa@uni.edu")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/users/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{
		"email": "qa@uni.edu", "password": "s3cr3t-pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/users/me", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	signupUser(t, srv.URL, "qa@uni.edu")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{
		"email": "qa@uni.edu", "password": "wrong-pass",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedRequests(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/chats", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatStreamEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv.URL, "qa@uni.edu")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/chats", token, map[string]string{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create chat = %d, want 201", resp.StatusCode)
	}
	var session struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &session)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/chats/"+session.ID+"/stream?message=hola", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q, want text/plain", ct)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(body) != "A\nB\n" {
		t.Fatalf("stream body = %q, want %q", body, "A\nB\n")
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/chats/"+session.ID, token, nil)
	var detail struct {
		Session struct {
			TotalMessages   int `json:"totalMessages"`
			TotalAIMessages int `json:"totalAiMessages"`
		} `json:"session"`
		Messages []struct {
			IsUser  bool   `json:"isUser"`
			Content string `json:"content"`
			HTML    string `json:"html"`
		} `json:"messages"`
	}
	decodeBody(t, resp, &detail)
	if detail.Session.TotalMessages != 2 || detail.Session.TotalAIMessages != 1 {
		t.Fatalf("counters = %d/%d, want 2/1", detail.Session.TotalMessages, detail.Session.TotalAIMessages)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(detail.Messages))
	}
	aiMsg := detail.Messages[1]
	if aiMsg.IsUser || aiMsg.Content != "A\nB" {
		t.Fatalf("AI message = %+v, want accumulated transcript", aiMsg)
	}
	if aiMsg.HTML == "" {
		t.Fatalf("AI message missing rendered HTML")
	}
}

func TestChatStreamRejectsBlankMessage(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv.URL, "qa@uni.edu")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/chats", token, map[string]string{})
	var session struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &session)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/chats/"+session.ID+"/stream?message=%20%20", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("stream status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatOwnershipReads404(t *testing.T) {
	srv := newTestServer(t)
	owner := signupUser(t, srv.URL, "qa@uni.edu")
	intruder := signupUser(t, srv.URL, "otro@uni.edu")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/chats", owner, map[string]string{})
	var session struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &session)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/chats/"+session.ID, intruder, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProjectUploadAndExport(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv.URL, "qa@uni.edu")

	body, contentType := uploadProjectBody(t, "Facturacion")
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/projects", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d, want 201 (%s)", resp.StatusCode, raw)
	}
	var project struct {
		ID        string `json:"id"`
		TestCases string `json:"testCases"`
	}
	decodeBody(t, resp, &project)
	if project.TestCases == "" {
		t.Fatalf("project missing generated cases")
	}

	body, contentType = uploadProjectBody(t, "Facturacion")
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/projects", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("duplicate upload: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/projects/"+project.ID+"/cases/pdf", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pdf status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("pdf Content-Type = %q", ct)
	}
	pdf, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("pdf body does not start with %%PDF")
	}
}

func TestProjectUploadRejectsShortContent(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv.URL, "qa@uni.edu")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "Corto")
	fw, _ := mw.CreateFormFile("file", "poco.txt")
	_, _ = io.WriteString(fw, "muy poco texto")
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/projects", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var out struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &out)
	if !strings.Contains(out.Error, "texto suficiente") {
		t.Fatalf("error = %q, want user-facing short-content message", out.Error)
	}
}

func TestMetricsEndpointRejectsBadDate(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv.URL, "qa@uni.edu")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/metrics?start_date=ayer", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDashboardSummaryAfterActivity(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv.URL, "qa@uni.edu")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/chats", token, map[string]string{})
	var session struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &session)
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/chats/"+session.ID+"/messages", token, map[string]string{"message": "hola"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send message = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/dashboard/summary", token, nil)
	var summary struct {
		TotalCases int `json:"totalCases"`
		TotalChats int `json:"totalChats"`
	}
	decodeBody(t, resp, &summary)
	if summary.TotalCases != 1 || summary.TotalChats != 1 {
		t.Fatalf("summary = %+v, want 1 case and 1 chat", summary)
	}
}

func TestSignupRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.New(redis.Addr(), "", "test:signup", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	srv := newTestServer(t, func(cfg *Config) { cfg.SignupLimiter = limiter })

	signupUser(t, srv.URL, "qa@uni.edu")
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/auth/signup", "", map[string]string{
		"email": "otro@uni.edu", "password": "s3cr3t-pass",
	})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	resp.Body.Close()
}
