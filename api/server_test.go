package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seenimoa/finlens/internal/agent"
	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/internal/config"
	"github.com/seenimoa/finlens/internal/ingest"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/internal/pipeline"
	"github.com/seenimoa/finlens/internal/report"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

// streamProvider streams a fixed reply in pieces.
type streamProvider struct {
	chunks []string
}

func (p *streamProvider) Name() string { return "stream" }

func (p *streamProvider) Chat(context.Context, []llm.Message, *llm.ChatOptions) (*llm.Response, error) {
	return &llm.Response{Content: strings.Join(p.chunks, "")}, nil
}

func (p *streamProvider) ChatStream(context.Context, []llm.Message, *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, len(p.chunks)+1)
	for _, c := range p.chunks {
		ch <- llm.StreamChunk{Content: c}
	}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *streamProvider) Models() []string { return []string{"stream-model"} }

func (p *streamProvider) Ping(context.Context) error { return nil }

// fakeAI narrates with fixed text and chats through streamProvider.
type fakeAI struct {
	mu       sync.Mutex
	narrated int
}

func (f *fakeAI) Benchmark(_ context.Context, industry string) (models.CompanyData, error) {
	c, _ := fundamental.BenchmarkFromValues(fundamental.AIBenchmarkName(industry), map[string]float64{"Current Ratio": 1.5})
	return c, nil
}

func (f *fakeAI) Narrative(context.Context, []models.CompanyData, *models.RatioResult) (*models.BilingualNarrative, error) {
	f.mu.Lock()
	f.narrated++
	f.mu.Unlock()
	return &models.BilingualNarrative{
		English: models.Narrative{Main: "## Executive Summary\nSolid year."},
		Arabic:  models.Narrative{Main: "## الملخص التنفيذي\nعام جيد."},
	}, nil
}

func (f *fakeAI) NewChat(companies []models.CompanyData) (*agent.ChatSession, error) {
	return agent.NewChatSession(&streamProvider{chunks: []string{"Revenue ", "grew ", "steadily."}}, nil, companies)
}

func testServer(t *testing.T, ai pipeline.AI) *Server {
	t.Helper()
	cfg := config.Default()
	var opts []pipeline.Option
	if ai != nil {
		opts = append(opts, pipeline.WithAI(ai))
	}
	opts = append(opts,
		pipeline.WithForecastPeriods(cfg.Analysis.ForecastPeriods),
		pipeline.WithMinForecastRecords(cfg.Analysis.ForecastMinPeriods),
	)
	return NewServerWithPipeline(cfg, pipeline.New(ingest.NewParser(), opts...))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

// decodeData re-decodes the envelope's data into v.
func decodeData(t *testing.T, resp APIResponse, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func do(srv *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, srv *Server, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return do(srv, method, path, bytes.NewReader(b), "application/json")
}

func templateCSV(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := report.WriteTemplateCSV(&buf); err != nil {
		t.Fatalf("template csv: %v", err)
	}
	return buf.Bytes()
}

// incompleteCSV is the template with the first period's revenue blank.
func incompleteCSV(t *testing.T) []byte {
	t.Helper()
	header, rows := statement.TemplateTable()
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(header)
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			if i == 0 && header[j] == statement.Revenue {
				continue
			}
			cells[j] = models.FormatNumber(v)
		}
		_ = cw.Write(cells)
	}
	cw.Flush()
	return buf.Bytes()
}

type upload struct {
	name, file string
	data       []byte
}

func multipartBody(t *testing.T, uploads []upload, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, u := range uploads {
		if err := mw.WriteField("name", u.name); err != nil {
			t.Fatal(err)
		}
		fw, err := mw.CreateFormFile("file", u.file)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(u.data); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

// startAnalysis posts uploads and returns the session.
func startAnalysis(t *testing.T, srv *Server, uploads []upload, fields map[string]string) *pipeline.Session {
	t.Helper()
	body, ct := multipartBody(t, uploads, fields)
	rec := do(srv, http.MethodPost, "/api/v1/analyses", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /analyses: got %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var snap pipeline.Snapshot
	decodeData(t, decodeResponse(t, rec), &snap)
	v, ok := srv.sessions.Get(snap.ID)
	if !ok {
		t.Fatalf("session %s not stored", snap.ID)
	}
	return v.(*pipeline.Session)
}

func waitState(t *testing.T, sess *pipeline.Session, want pipeline.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := sess.State(); got == want {
			return
		} else if got.Terminal() && got != want {
			t.Fatalf("state: got %s, want %s", got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state: timed out waiting for %s (at %s)", want, sess.State())
}

func waitReady(t *testing.T, sess *pipeline.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := sess.Wait(ctx); err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// Service Endpoints
// ════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	srv := testServer(t, nil)
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := do(srv, http.MethodGet, path, nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status: got %d, want 200", path, rec.Code)
		}
		var h HealthResponse
		decodeData(t, decodeResponse(t, rec), &h)
		if h.Status != "ok" || h.AI {
			t.Errorf("%s: got %+v", path, h)
		}
	}
}

func TestRatioCatalog(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(srv, http.MethodGet, "/api/v1/ratios", nil, "")
	var got []RatioInfo
	decodeData(t, decodeResponse(t, rec), &got)
	if len(got) != len(fundamental.AllRatioKinds()) {
		t.Fatalf("ratios: got %d, want %d", len(got), len(fundamental.AllRatioKinds()))
	}
	found := false
	for _, r := range got {
		if r.Name == fundamental.PriceToEarnings.String() {
			found = true
			if !r.Valuation {
				t.Errorf("%s: want valuation", r.Name)
			}
		}
		if r.Percentage != utils.IsPercentageRatio(r.Name) {
			t.Errorf("%s percentage: got %v", r.Name, r.Percentage)
		}
	}
	if !found {
		t.Error("catalog is missing P/E")
	}
}

func TestTemplateDownloads(t *testing.T) {
	srv := testServer(t, nil)

	rec := do(srv, http.MethodGet, "/api/v1/template.csv", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status: got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, statement.TemplateCSVName) {
		t.Errorf("csv disposition: got %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), statement.Year) {
		t.Errorf("csv should start with the %s column, got %q", statement.Year, rec.Body.String()[:20])
	}

	rec = do(srv, http.MethodGet, "/api/v1/template.xlsx", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx status: got %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("xlsx body is not a zip archive")
	}
}

func TestForecastEndpoint(t *testing.T) {
	srv := testServer(t, nil)
	ratios, _ := fundamental.ComputeRatios(statement.TemplateRecords())

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/forecast", ForecastRequest{Ratios: ratios, Periods: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
	}
	var got models.RatioResult
	decodeData(t, decodeResponse(t, rec), &got)
	if got.Len() != ratios.Len()+2 {
		t.Fatalf("periods: got %d, want %d", got.Len(), ratios.Len()+2)
	}
	if last := got.Years[got.Len()-1]; last != "2025 (F)" {
		t.Errorf("last label: got %q, want %q", last, "2025 (F)")
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/forecast", ForecastRequest{Ratios: ratios, Periods: 20})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("periods 20: got %d, want 400", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/forecast", ForecastRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no ratios: got %d, want 400", rec.Code)
	}
	body := `{"ratios":{"Year":[2022,2023],"Current Ratio":[1.5,1.6,1.7]},"periods":2}`
	rec = do(srv, http.MethodPost, "/api/v1/forecast", strings.NewReader(body), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("misaligned series: got %d, want 400", rec.Code)
	}
}

// ════════════════════════════════════════════════════════════════════
// Analysis Sessions
// ════════════════════════════════════════════════════════════════════

func TestAnalysisLifecycle(t *testing.T) {
	srv := testServer(t, nil)
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", templateCSV(t)}}, map[string]string{"forecast": "true"})
	waitReady(t, sess)

	rec := do(srv, http.MethodGet, "/api/v1/analyses/"+sess.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET: got %d", rec.Code)
	}
	var snap pipeline.Snapshot
	decodeData(t, decodeResponse(t, rec), &snap)
	if snap.State != pipeline.StateReady {
		t.Errorf("state: got %s, want %s", snap.State, pipeline.StateReady)
	}
	if snap.Result == nil || snap.Result.Forecast == nil {
		t.Fatal("result should carry a forecast")
	}
	if name := snap.Result.Primary().Name; name != "Acme" {
		t.Errorf("company: got %q, want Acme", name)
	}
}

func TestAnalysisDownloads(t *testing.T) {
	srv := testServer(t, nil)
	sess := startAnalysis(t, srv, []upload{{"Acme Co", "acme.csv", templateCSV(t)}}, nil)
	waitReady(t, sess)
	base := "/api/v1/analyses/" + sess.ID

	tests := []struct {
		path        string
		contentType string
		prefix      string
	}{
		{"/report.pdf", "application/pdf", "%PDF"},
		{"/report.html", "text/html; charset=utf-8", "<!DOCTYPE html>"},
		{"/report.md", "text/markdown; charset=utf-8", "# "},
		{"/ratios.csv", "text/csv; charset=utf-8", "company,ratio"},
		{"/ratios.xlsx", xlsxContentType, "PK"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(srv, http.MethodGet, base+tt.path, nil, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("content type: got %q, want %q", ct, tt.contentType)
			}
			if !strings.HasPrefix(strings.TrimSpace(rec.Body.String()), tt.prefix) {
				t.Errorf("body should start with %q", tt.prefix)
			}
		})
	}

	rec := do(srv, http.MethodGet, base+"/report.pdf", nil, "")
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "AAA_Finance_Report_Acme_Co.pdf") {
		t.Errorf("pdf disposition: got %q", cd)
	}
}

func TestReportQueryParameters(t *testing.T) {
	srv := testServer(t, nil)
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", templateCSV(t)}}, nil)
	waitReady(t, sess)
	base := "/api/v1/analyses/" + sess.ID

	rec := do(srv, http.MethodGet, base+"/report.html?lang=ar", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("arabic html: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `dir="rtl"`) {
		t.Error("arabic html should be right-to-left")
	}

	rec = do(srv, http.MethodGet, base+"/report.pdf?lang=ar", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("arabic pdf without font: got %d, want 400", rec.Code)
	}

	rec = do(srv, http.MethodGet, base+"/report.md?lang=klingon", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown language: got %d, want 400", rec.Code)
	}
}

func TestCreateAnalysisRejectsBadRequests(t *testing.T) {
	srv := testServer(t, nil)
	csvData := templateCSV(t)

	tests := []struct {
		name    string
		uploads []upload
		fields  map[string]string
		want    int
	}{
		{"no companies", nil, nil, http.StatusBadRequest},
		{"missing name", []upload{{"", "a.csv", csvData}}, nil, http.StatusBadRequest},
		{"bad boolean", []upload{{"Acme", "a.csv", csvData}}, map[string]string{"forecast": "maybe"}, http.StatusBadRequest},
		{"bad periods", []upload{{"Acme", "a.csv", csvData}}, map[string]string{"periods": "three"}, http.StatusBadRequest},
		{"periods out of range", []upload{{"Acme", "a.csv", csvData}}, map[string]string{"periods": "11"}, http.StatusBadRequest},
		{"benchmark without industry", []upload{{"Acme", "a.csv", csvData}}, map[string]string{"benchmark": "true"}, http.StatusBadRequest},
		{"ai benchmark without ai", []upload{{"Acme", "a.csv", csvData}}, map[string]string{"benchmark": "true", "industry": "Retail"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.uploads, tt.fields)
			rec := do(srv, http.MethodPost, "/api/v1/analyses", body, ct)
			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if resp := decodeResponse(t, rec); resp.Success || resp.Error == "" {
				t.Errorf("want an error envelope, got %+v", resp)
			}
		})
	}

	rec := do(srv, http.MethodPost, "/api/v1/analyses", strings.NewReader("{}"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-multipart: got %d, want 400", rec.Code)
	}
}

func TestUnknownAnalysis(t *testing.T) {
	srv := testServer(t, nil)
	for _, path := range []string{"", "/report.pdf", "/chat"} {
		rec := do(srv, http.MethodGet, "/api/v1/analyses/missing"+path, nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %q: got %d, want 404", path, rec.Code)
		}
	}
}

// ── Corrections ──

func TestCorrectionsResumeRun(t *testing.T) {
	srv := testServer(t, nil)
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", incompleteCSV(t)}}, nil)
	waitState(t, sess, pipeline.StateAwaitingCorrection)
	base := "/api/v1/analyses/" + sess.ID

	pending, ok := sess.Pending()
	if !ok {
		t.Fatal("want a pending correction")
	}
	if !pending.Issues.Has(statement.PeriodKey(pending.Records[0], 0), statement.Revenue) {
		t.Fatalf("issues: got %v, want %s flagged", pending.Issues, statement.Revenue)
	}

	rec := do(srv, http.MethodGet, base+"/report.pdf", nil, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("report before ready: got %d, want 409", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, base+"/corrections", CorrectionBody{
		Corrections: []statement.Correction{{statement.Revenue: "150000 SAR"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("corrections: got %d: %s", rec.Code, rec.Body.String())
	}
	waitReady(t, sess)

	result, _ := sess.Result()
	rev, _ := result.Primary().Records[0].Get(statement.Revenue)
	if rev != 150000 {
		t.Errorf("corrected revenue: got %v, want 150000", rev)
	}

	rec = doJSON(t, srv, http.MethodPost, base+"/corrections", CorrectionBody{Cancel: true})
	if rec.Code != http.StatusConflict {
		t.Errorf("correction after ready: got %d, want 409", rec.Code)
	}
}

func TestCorrectionsCancel(t *testing.T) {
	srv := testServer(t, nil)
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", incompleteCSV(t)}}, nil)
	waitState(t, sess, pipeline.StateAwaitingCorrection)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/analyses/"+sess.ID+"/corrections", CorrectionBody{Cancel: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: got %d", rec.Code)
	}
	waitState(t, sess, pipeline.StateCancelled)
}

func TestCorrectionsTooMany(t *testing.T) {
	srv := testServer(t, nil)
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", incompleteCSV(t)}}, nil)
	waitState(t, sess, pipeline.StateAwaitingCorrection)

	v := 1.0
	values := make([]map[string]*float64, 10)
	for i := range values {
		values[i] = map[string]*float64{statement.Revenue: &v}
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/analyses/"+sess.ID+"/corrections", CorrectionBody{Values: values})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
	if sess.State() != pipeline.StateAwaitingCorrection {
		t.Errorf("state: got %s, want the run still waiting", sess.State())
	}
	sess.Abort()
}

func TestDeleteAnalysis(t *testing.T) {
	srv := testServer(t, nil)
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", incompleteCSV(t)}}, nil)
	waitState(t, sess, pipeline.StateAwaitingCorrection)

	rec := do(srv, http.MethodDelete, "/api/v1/analyses/"+sess.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: got %d", rec.Code)
	}
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after delete")
	}

	rec = do(srv, http.MethodGet, "/api/v1/analyses/"+sess.ID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete: got %d, want 404", rec.Code)
	}
}

// ════════════════════════════════════════════════════════════════════
// Chat
// ════════════════════════════════════════════════════════════════════

func TestChatWithoutAI(t *testing.T) {
	srv := testServer(t, nil)
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", templateCSV(t)}}, nil)
	waitReady(t, sess)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/analyses/"+sess.ID+"/chat", ChatRequest{Message: "hi"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
}

func TestChat(t *testing.T) {
	ai := &fakeAI{}
	srv := testServer(t, ai)
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", templateCSV(t)}}, nil)
	waitReady(t, sess)
	base := "/api/v1/analyses/" + sess.ID

	rec := doJSON(t, srv, http.MethodPost, base+"/chat", ChatRequest{Message: "How did revenue do?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: got %d: %s", rec.Code, rec.Body.String())
	}
	var got ChatResponse
	decodeData(t, decodeResponse(t, rec), &got)
	if got.Reply != "Revenue grew steadily." {
		t.Errorf("reply: got %q", got.Reply)
	}
	if len(got.History) != 2 || got.History[0].Role != models.ChatUser {
		t.Errorf("history: got %+v", got.History)
	}

	rec = doJSON(t, srv, http.MethodPost, base+"/chat", ChatRequest{Message: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message: got %d, want 400", rec.Code)
	}

	rec = do(srv, http.MethodGet, base+"/chat", nil, "")
	var history []models.ChatMessage
	decodeData(t, decodeResponse(t, rec), &history)
	if len(history) != 2 {
		t.Errorf("history endpoint: got %d messages, want 2", len(history))
	}

	// The narrative reaches the report.
	rec = do(srv, http.MethodGet, base+"/report.md", nil, "")
	if !strings.Contains(rec.Body.String(), "Solid year.") {
		t.Error("markdown report should include the narrative")
	}
}

func TestChatWebSocket(t *testing.T) {
	srv := testServer(t, &fakeAI{})
	sess := startAnalysis(t, srv, []upload{{"Acme", "acme.csv", templateCSV(t)}}, nil)
	waitReady(t, sess)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/analyses/" + sess.ID + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": WSTypeMessage, "text": "Summarize"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var chunks strings.Builder
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch msg.Type {
		case WSTypeChunk:
			chunks.WriteString(msg.Data.(string))
			continue
		case WSTypeDone:
			if msg.Data != "Revenue grew steadily." {
				t.Errorf("done: got %v", msg.Data)
			}
		default:
			t.Fatalf("unexpected message: %+v", msg)
		}
		break
	}
	if chunks.String() != "Revenue grew steadily." {
		t.Errorf("chunks: got %q", chunks.String())
	}

	if err := conn.WriteJSON(map[string]string{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != WSTypeError {
		t.Errorf("unknown type: got %s, want error", msg.Type)
	}
}

// ════════════════════════════════════════════════════════════════════
// Configuration
// ════════════════════════════════════════════════════════════════════

func TestGetConfigRedactsKeys(t *testing.T) {
	srv := testServer(t, nil)
	srv.cfg.LLM.GeminiKey = "AIza-secret-value"

	rec := do(srv, http.MethodGet, "/api/v1/config", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "AIza-secret-value") {
		t.Error("config response leaks the API key")
	}
	if srv.cfg.LLM.GeminiKey != "AIza-secret-value" {
		t.Error("redaction must not touch the running config")
	}

	rec = do(srv, http.MethodGet, "/api/v1/config/keys", nil, "")
	var keys []config.KeyStatus
	decodeData(t, decodeResponse(t, rec), &keys)
	if len(keys) != 3 {
		t.Fatalf("keys: got %d, want 3", len(keys))
	}
	if !keys[0].IsSet || strings.Contains(keys[0].Masked, "secret") {
		t.Errorf("gemini key status: got %+v", keys[0])
	}
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	srv := testServer(t, nil)
	rec := doJSON(t, srv, http.MethodPut, "/api/v1/config", map[string]any{
		"logging": map[string]string{"level": "loud"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
	if srv.cfg.Logging.Level != "info" {
		t.Errorf("level: got %q, want the running value kept", srv.cfg.Logging.Level)
	}

	rec = do(srv, http.MethodPut, "/api/v1/config", strings.NewReader("{"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: got %d, want 400", rec.Code)
	}
}

func TestMergeConfig(t *testing.T) {
	dst := config.Default()
	src := &config.Config{}
	src.LLM.Primary = "anthropic"
	src.Analysis.ForecastPeriods = 5
	src.Report.Author = "Audit Desk"

	mergeConfig(dst, src)
	if dst.LLM.Primary != "anthropic" {
		t.Errorf("primary: got %q", dst.LLM.Primary)
	}
	if dst.Analysis.ForecastPeriods != 5 {
		t.Errorf("forecast periods: got %d", dst.Analysis.ForecastPeriods)
	}
	if dst.Report.Author != "Audit Desk" {
		t.Errorf("author: got %q", dst.Report.Author)
	}
	if dst.Logging.Level != "info" {
		t.Errorf("zero values must not overwrite: level %q", dst.Logging.Level)
	}
	if dst.API.Port != 8080 {
		t.Errorf("port: got %d", dst.API.Port)
	}
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&pipeline.FlowError{Kind: pipeline.ErrInvalidRequest, Message: "x"}, http.StatusBadRequest},
		{fundamental.ErrInvalidPeriods, http.StatusBadRequest},
		{report.ErrFontRequired, http.StatusBadRequest},
		{pipeline.ErrNotAwaiting, http.StatusConflict},
		{pipeline.ErrNotReady, http.StatusConflict},
		{pipeline.ErrAIUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAPIResponseOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(APIResponse{Success: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"success":true}` {
		t.Errorf("got %s", data)
	}
}
