package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"casegen/pkg/ai"
	"casegen/pkg/domain"
	"casegen/pkg/storage"
	"casegen/pkg/store"
)

type fakeGenerator struct {
	srv *httptest.Server

	mu            sync.Mutex
	generateCalls int
	projectCalls  int

	reply        string
	projectCases string
	streamChunks []string
	failStream   bool
}

func newFakeGenerator(t *testing.T) *fakeGenerator {
	t.Helper()
	f := &fakeGenerator{
		reply:        "ID: TC-01\nresultado esperado",
		projectCases: "ID: TC-01\nID: TC-02\nID: TC-03",
		streamChunks: []string{"A\n", "\n", "B\n"},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGenerator) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	switch r.URL.Path {
	case "/generate":
		f.mu.Lock()
		f.generateCalls++
		failStream := f.failStream
		chunks := f.streamChunks
		reply := f.reply
		f.mu.Unlock()
		if body["stream"] == true {
			if failStream {
				http.Error(w, "unavailable", http.StatusBadGateway)
				return
			}
			flusher := w.(http.Flusher)
			for _, chunk := range chunks {
				fmt.Fprint(w, chunk)
				flusher.Flush()
			}
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"test_cases": reply})
	case "/generate-project":
		f.mu.Lock()
		f.projectCalls++
		cases := f.projectCases
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"test_cases": cases})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGenerator) setFailStream(fail bool) {
	f.mu.Lock()
	f.failStream = fail
	f.mu.Unlock()
}

func (f *fakeGenerator) calls() (generate, project int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls, f.projectCalls
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *storage.MemoryObjectStore, *fakeGenerator) {
	t.Helper()
	st := store.NewMemoryStore()
	objects := storage.NewMemoryObjectStore()
	gen := newFakeGenerator(t)
	return New(st, objects, ai.NewClient(gen.srv.URL)), st, objects, gen
}

func signUpTestUser(t *testing.T, a *App) domain.User {
	t.Helper()
	user, err := a.SignUp("qa@uni.edu", "s3cr3t-pass", "Ana", "Prueba")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return user
}

func TestSendMessageUpdatesLedgerAndMetrics(t *testing.T) {
	a, st, _, _ := newTestApp(t)
	user := signUpTestUser(t, a)

	session, err := a.CreateChat(user, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if session.Title != "Nuevo Chat" {
		t.Fatalf("Title = %q, want placeholder", session.Title)
	}

	aiMsg, err := a.SendMessage(context.Background(), user, session.ID, "necesito casos para el modulo de pagos")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if aiMsg.IsUser || !aiMsg.Success {
		t.Fatalf("aiMsg = %+v, want successful AI message", aiMsg)
	}

	updated, _, err := a.GetChat(user, session.ID)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if updated.TotalMessages != 2 || updated.TotalAIMessages != 1 {
		t.Fatalf("counters = %d/%d, want 2/1", updated.TotalMessages, updated.TotalAIMessages)
	}
	if updated.Title != "necesito casos para el modulo de pagos" {
		t.Fatalf("Title = %q, want derived from first message", updated.Title)
	}

	rows, err := st.MetricsInRange(user.ID, nil, nil)
	if err != nil {
		t.Fatalf("MetricsInRange: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	m := rows[0]
	if m.TotalMessages != 2 || m.TotalAIResponses != 1 || m.TotalChats != 1 {
		t.Fatalf("metric = %+v", m)
	}
	// fast responses still credit the 1-minute floor plus the 5-minute bonus
	if m.TimeSavedMinutes != 6 {
		t.Fatalf("TimeSavedMinutes = %d, want 6", m.TimeSavedMinutes)
	}
	if m.Accuracy != 0.8 {
		t.Fatalf("Accuracy = %v, want 0.8", m.Accuracy)
	}
}

func TestConcurrentMessagesShareOneMetricRow(t *testing.T) {
	a, st, _, _ := newTestApp(t)
	user := signUpTestUser(t, a)
	session, err := a.CreateChat(user, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.SendMessage(context.Background(), user, session.ID, fmt.Sprintf("requerimiento %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}

	updated, _, err := a.GetChat(user, session.ID)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if updated.TotalMessages != 2*n || updated.TotalAIMessages != n {
		t.Fatalf("counters = %d/%d, want %d/%d", updated.TotalMessages, updated.TotalAIMessages, 2*n, n)
	}

	rows, err := st.MetricsInRange(user.ID, nil, nil)
	if err != nil {
		t.Fatalf("MetricsInRange: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want all increments folded into one row", len(rows))
	}
	if rows[0].TotalAIResponses != n {
		t.Fatalf("TotalAIResponses = %d, want %d", rows[0].TotalAIResponses, n)
	}
}

func TestAccuracyCapsHold(t *testing.T) {
	a, st, _, _ := newTestApp(t)
	user := signUpTestUser(t, a)
	session, err := a.CreateChat(user, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	for i := 0; i < 150; i++ {
		if _, err := a.SendMessage(context.Background(), user, session.ID, "requerimiento"); err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
	}

	rows, err := st.MetricsInRange(user.ID, nil, nil)
	if err != nil {
		t.Fatalf("MetricsInRange: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].Accuracy != 95 {
		t.Fatalf("Accuracy = %v, want settled at 95", rows[0].Accuracy)
	}
}

func TestStreamChatPersistsTranscriptAfterEOF(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	user := signUpTestUser(t, a)
	session, err := a.CreateChat(user, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	var lines []string
	err = a.StreamChat(context.Background(), user, session.ID, "crear casos", func(line string) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	want := []string{"A\n", "B\n"}
	if len(lines) != len(want) || lines[0] != want[0] || lines[1] != want[1] {
		t.Fatalf("lines = %q, want %q", lines, want)
	}

	_, messages, err := a.GetChat(user, session.ID)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want user + AI", len(messages))
	}
	aiMsg := messages[1]
	if aiMsg.IsUser {
		t.Fatalf("second message should be the AI transcript")
	}
	if aiMsg.Content != "A\nB" {
		t.Fatalf("transcript = %q, want %q", aiMsg.Content, "A\nB")
	}
}

func TestStreamChatUpstreamFailurePersistsNoAIMessage(t *testing.T) {
	a, _, _, gen := newTestApp(t)
	user := signUpTestUser(t, a)
	session, err := a.CreateChat(user, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	gen.setFailStream(true)

	err = a.StreamChat(context.Background(), user, session.ID, "crear casos", func(string) error {
		t.Fatalf("sink must not be called on upstream failure")
		return nil
	})
	if !errors.Is(err, ai.ErrUpstream) {
		t.Fatalf("StreamChat error = %v, want ErrUpstream", err)
	}

	updated, messages, err := a.GetChat(user, session.ID)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if updated.TotalAIMessages != 0 {
		t.Fatalf("TotalAIMessages = %d, want 0", updated.TotalAIMessages)
	}
	if len(messages) != 1 || !messages[0].IsUser {
		t.Fatalf("messages = %+v, want only the user turn", messages)
	}
}

func uploadText() []byte {
	return []byte(strings.Repeat("El sistema debe permitir registrar facturas. ", 10))
}

func TestUploadProjectPipeline(t *testing.T) {
	a, st, objects, _ := newTestApp(t)
	user := signUpTestUser(t, a)

	project, err := a.UploadProject(context.Background(), user, "Facturacion", "modulo de facturas", "requisitos.txt", uploadText())
	if err != nil {
		t.Fatalf("UploadProject: %v", err)
	}
	if project.TestCases == "" {
		t.Fatalf("project has no generated cases")
	}
	if !objects.Has(project.FileKey) {
		t.Fatalf("artifact not stored under %q", project.FileKey)
	}

	rows, err := st.MetricsInRange(user.ID, nil, nil)
	if err != nil {
		t.Fatalf("MetricsInRange: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want seeded metric row", len(rows))
	}
	seed := rows[0]
	if seed.ProjectID != project.ID {
		t.Fatalf("seed.ProjectID = %q, want %q", seed.ProjectID, project.ID)
	}
	if seed.TotalAIResponses != 3 {
		t.Fatalf("TotalAIResponses = %d, want one per ID: header", seed.TotalAIResponses)
	}
	if seed.TimeSavedMinutes != 10 || seed.Accuracy != 0.9 {
		t.Fatalf("seed = %+v, want minutes 10 and accuracy 0.9", seed)
	}
}

func TestUploadProjectDuplicateNameFailsBeforeGeneration(t *testing.T) {
	a, _, _, gen := newTestApp(t)
	user := signUpTestUser(t, a)

	if _, err := a.UploadProject(context.Background(), user, "Facturacion", "", "requisitos.txt", uploadText()); err != nil {
		t.Fatalf("first UploadProject: %v", err)
	}
	_, projectCalls := gen.calls()
	if projectCalls != 1 {
		t.Fatalf("projectCalls = %d, want 1", projectCalls)
	}

	_, err := a.UploadProject(context.Background(), user, "Facturacion", "", "otros.txt", uploadText())
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("second UploadProject error = %v, want ErrDuplicateName", err)
	}
	_, projectCalls = gen.calls()
	if projectCalls != 1 {
		t.Fatalf("projectCalls = %d after duplicate, want still 1 (no remote call)", projectCalls)
	}
}

func TestProjectCasesPopulateOnce(t *testing.T) {
	a, st, _, gen := newTestApp(t)
	user := signUpTestUser(t, a)

	// A project persisted without cases, as if generation had been skipped.
	project := domain.Project{
		ID:          "p1",
		OwnerID:     user.ID,
		Name:        "Legacy",
		Description: strings.Repeat("Debe validar el inicio de sesion con credenciales. ", 5),
	}
	if err := st.CreateProject(project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	got, err := a.ProjectCases(context.Background(), user, project.ID)
	if err != nil {
		t.Fatalf("ProjectCases: %v", err)
	}
	if got.TestCases == "" {
		t.Fatalf("cases not generated")
	}
	if _, err := a.ProjectCases(context.Background(), user, project.ID); err != nil {
		t.Fatalf("second ProjectCases: %v", err)
	}
	_, projectCalls := gen.calls()
	if projectCalls != 1 {
		t.Fatalf("projectCalls = %d, want generate-once then reuse", projectCalls)
	}
}

func TestOwnershipReadsAsAbsent(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	owner := signUpTestUser(t, a)
	intruder, err := a.SignUp("otro@uni.edu", "s3cr3t-pass", "Luis", "Ajeno")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	session, err := a.CreateChat(owner, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, _, err := a.GetChat(intruder, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetChat as intruder = %v, want ErrNotFound", err)
	}

	project, err := a.UploadProject(context.Background(), owner, "Facturacion", "", "requisitos.txt", uploadText())
	if err != nil {
		t.Fatalf("UploadProject: %v", err)
	}
	if err := a.DeleteProject(context.Background(), intruder, project.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteProject as intruder = %v, want ErrNotFound", err)
	}
}

func TestDeleteProjectFileKeepsCases(t *testing.T) {
	a, st, objects, _ := newTestApp(t)
	user := signUpTestUser(t, a)

	project, err := a.UploadProject(context.Background(), user, "Facturacion", "", "requisitos.txt", uploadText())
	if err != nil {
		t.Fatalf("UploadProject: %v", err)
	}
	if err := a.DeleteProjectFile(context.Background(), user, project.ID); err != nil {
		t.Fatalf("DeleteProjectFile: %v", err)
	}
	if objects.Has(project.FileKey) {
		t.Fatalf("artifact still stored after DeleteProjectFile")
	}
	stored, ok, err := st.GetProject(project.ID)
	if err != nil || !ok {
		t.Fatalf("GetProject: ok=%v err=%v", ok, err)
	}
	if stored.FileKey != "" || stored.OriginalFilename != "" {
		t.Fatalf("file fields not cleared: %+v", stored)
	}
	if stored.TestCases == "" {
		t.Fatalf("generated cases must survive file deletion")
	}
}
