package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"medtutor/internal/chatbroker"
	"medtutor/internal/config"
	"medtutor/internal/domain"
	"medtutor/internal/grader"
	"medtutor/internal/llmorch"
	"medtutor/internal/objectstore"
	"medtutor/internal/questiongen"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/rag/service"
	"medtutor/internal/store/memstore"
	"medtutor/internal/vectorstore"
)

func helperOrchestrator(t *testing.T, mode string) *llmorch.Orchestrator {
	t.Helper()
	os.Setenv("HTTPAPI_WANT_HELPER_PROCESS", mode)
	t.Cleanup(func() { os.Unsetenv("HTTPAPI_WANT_HELPER_PROCESS") })
	return llmorch.New(config.OrchestratorConfig{
		Binary:               os.Args[0],
		Args:                 []string{"-test.run=TestHelperProcess", "--", mode},
		ModelAllowList:       []string{"default"},
		IdleTimeout:          2 * time.Second,
		MaxConcurrent:        4,
		MaxConcurrentPerUser: 2,
		CancelGrace:          100 * time.Millisecond,
	})
}

func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("HTTPAPI_WANT_HELPER_PROCESS")
	if mode == "" {
		return
	}
	defer os.Exit(0)

	switch mode {
	case "questions":
		fmt.Fprint(os.Stdout, `{"items":[{"vignette":"A 30 y/o woman presents with fatigue.","question":"What test confirms the diagnosis?","options":["TSH","CBC","CT head","ECG"],"correct_index":0,"explanation":"TSH is first-line.","teaching_points":["hypothyroidism screening"]}]}`)
	case "chat":
		fmt.Fprint(os.Stdout, "hi there")
	}
}

type testServer struct {
	srv       *Server
	materials *memstore.Materials
	questions *memstore.Questions
}

func newTestServer(t *testing.T, mode string) *testServer {
	t.Helper()
	materials := memstore.NewMaterials()
	questions := memstore.NewQuestions(memstore.NewLedger())
	conversations := memstore.NewConversations()
	objects := objectstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore(64)
	embed := embedder.NewDeterministic(64, true, 1)

	rag := service.New(materials, objects, vectors, embed)
	orch := helperOrchestrator(t, mode)
	g := grader.New(questions, nil, nil)
	gen := questiongen.New(questions, orch, nil)
	broker := chatbroker.New(conversations, rag.Retriever, orch, config.ChatConfig{})

	srv := NewServer(Deps{
		Materials: materials,
		Questions: questions,
		Objects:   objects,
		RAG:       rag,
		Grader:    g,
		Generator: gen,
		Broker:    broker,
	}, config.HTTPConfig{MaxUploadBytes: 1024 * 1024}, "default")

	return &testServer{srv: srv, materials: materials, questions: questions}
}

func doRequest(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("X-Owner-ID", "owner-1")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestUploadMaterialStoresAndIngests(t *testing.T) {
	ts := newTestServer(t, "questions")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fmt.Fprint(part, strings.Repeat("Hypothyroidism presents with fatigue and cold intolerance. ", 100))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/materials", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.ID == "" {
		t.Fatalf("expected a material id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m, err := ts.materials.GetMaterial(context.Background(), "owner-1", resp.ID)
		if err != nil {
			t.Fatalf("GetMaterial: %v", err)
		}
		if m.Status == domain.MaterialCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("material did not reach completed status in time")
}

func TestUploadMaterialRejectsOversized(t *testing.T) {
	ts := newTestServer(t, "questions")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "big.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fmt.Fprint(part, strings.Repeat("x", 2*1024*1024))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/materials", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestUploadMaterialAcceptsExactBoundarySize(t *testing.T) {
	ts := newTestServer(t, "questions")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "exact.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte("x"), 1024*1024)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/materials", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 for a file at exactly the configured limit, body=%s", rec.Code, rec.Body.String())
	}
}

func TestUploadMaterialRejectsOneByteOverBoundary(t *testing.T) {
	ts := newTestServer(t, "questions")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "over.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte("x"), 1024*1024+1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/materials", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 for one byte over the configured limit", rec.Code)
	}
}

func TestGenerateGetAnswerAndDeleteQuestion(t *testing.T) {
	ts := newTestServer(t, "questions")

	genBody, _ := json.Marshal(generateRequest{Topic: "endocrinology", NumQuestions: 1, Difficulty: 2, UserLevel: 2})
	rec := doRequest(t, ts.srv, http.MethodPost, "/questions/generate", genBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var views []questionView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("len(views) = %d, want 1", len(views))
	}
	if views[0].Vignette == "" {
		t.Fatalf("expected a non-empty vignette")
	}

	id := views[0].ID

	rec = doRequest(t, ts.srv, http.MethodGet, "/questions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var gotView questionView
	if err := json.Unmarshal(rec.Body.Bytes(), &gotView); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if gotView.ID != id {
		t.Fatalf("got id %q, want %q", gotView.ID, id)
	}

	answerBody, _ := json.Marshal(answerRequest{SelectedIndex: 0, Confidence: 3, TimeTakenSeconds: 20})
	rec = doRequest(t, ts.srv, http.MethodPost, "/questions/"+id+"/answer", answerBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("answer status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var ans answerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !ans.IsCorrect {
		t.Fatalf("expected is_correct = true")
	}

	rec = doRequest(t, ts.srv, http.MethodDelete, "/questions/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doRequest(t, ts.srv, http.MethodGet, "/questions/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", rec.Code)
	}
}

func TestDueReviewsListsUnansweredQuestion(t *testing.T) {
	ts := newTestServer(t, "questions")

	genBody, _ := json.Marshal(generateRequest{Topic: "cardiology", NumQuestions: 1, Difficulty: 1, UserLevel: 1})
	rec := doRequest(t, ts.srv, http.MethodPost, "/questions/generate", genBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate status = %d", rec.Code)
	}

	rec = doRequest(t, ts.srv, http.MethodGet, "/questions/due/reviews", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("due status = %d", rec.Code)
	}
	var payload struct {
		Due []dueItemView `json:"due"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(payload.Due) != 1 {
		t.Fatalf("len(due) = %d, want 1", len(payload.Due))
	}
}

func TestGenerateRejectsMissingOwner(t *testing.T) {
	ts := newTestServer(t, "questions")
	body, _ := json.Marshal(generateRequest{Topic: "x", NumQuestions: 1})
	req := httptest.NewRequest(http.MethodPost, "/questions/generate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestChatChannelStreamsReplyAndSendsEnd(t *testing.T) {
	ts := newTestServer(t, "chat")
	httpSrv := httptest.NewServer(ts.srv)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/chat/conv-1"
	header := http.Header{}
	header.Set("X-Owner-ID", "owner-1")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(chatbroker.InboundFrame{Type: chatbroker.FrameTypeMessage, Content: "hello"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	sawEnd := false
	var text strings.Builder
	for i := 0; i < 10; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var f chatbroker.OutboundFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if f.Type == chatbroker.FrameTypeDelta {
			text.WriteString(f.Text)
		}
		if f.Type == chatbroker.FrameTypeEnd {
			sawEnd = true
			break
		}
	}
	if !sawEnd {
		t.Fatalf("did not receive an end frame")
	}
	if text.String() != "hi there" {
		t.Fatalf("text = %q, want %q", text.String(), "hi there")
	}
}
