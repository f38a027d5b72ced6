package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seenimoa/finlens/internal/ingest"
	"github.com/seenimoa/finlens/internal/pipeline"
	"github.com/seenimoa/finlens/internal/report"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// maxCompanies bounds the uploads accepted in one request.
const maxCompanies = 10

// CorrectionBody is the body of POST /api/v1/analyses/{id}/corrections.
//
// Values and Corrections are indexed by record, in the order of the
// pending correction request. Values carries parsed numbers (null clears a
// field); Corrections carries free text such as "150000 SAR" whose numeric
// prefix is used. Cancel dismisses the request instead.
type CorrectionBody struct {
	Values      []map[string]*float64 `json:"values,omitempty"`
	Corrections []statement.Correction `json:"corrections,omitempty"`
	Cancel      bool                   `json:"cancel,omitempty"`
}

// ChatRequest is the body of POST /api/v1/analyses/{id}/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse returns the assistant reply with the updated history.
type ChatResponse struct {
	Reply   string               `json:"reply"`
	History []models.ChatMessage `json:"history"`
}

// ════════════════════════════════════════════════════════════════════
// Sessions
// ════════════════════════════════════════════════════════════════════

// handleCreateAnalysis starts a run from a multipart form. Each company is
// a "name" field paired by position with a "file" part. Optional fields:
// benchmark, industry, forecast (booleans as strconv.ParseBool accepts)
// and periods.
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.settings().Analysis.MaxUploadMB) << 20
	if limit <= 0 {
		limit = 20 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit*maxCompanies)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := analysisRequest(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives this request; the session owns its context.
	sess, err := s.pipe.Start(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.sessions.Set(sess.ID, sess)

	requestLogger(r).Info().
		Str("session", sess.ID).
		Int("companies", len(req.Companies)).
		Bool("benchmark", req.Benchmark).
		Bool("forecast", req.Forecast).
		Msg("analysis started")

	writeJSON(w, http.StatusAccepted, APIResponse{Success: true, Data: sess.Snapshot()})
}

func analysisRequest(form *multipart.Form) (pipeline.Request, error) {
	var req pipeline.Request
	names := form.Value["name"]
	files := form.File["file"]
	n := max(len(names), len(files))
	if n > maxCompanies {
		return req, errors.New("at most " + strconv.Itoa(maxCompanies) + " companies per analysis")
	}

	for i := 0; i < n; i++ {
		var in pipeline.CompanyInput
		if i < len(names) {
			in.Name = strings.TrimSpace(names[i])
		}
		if i < len(files) {
			up, err := readUpload(files[i])
			if err != nil {
				return req, err
			}
			in.Upload = up
		}
		req.Companies = append(req.Companies, in)
	}

	var err error
	if req.Benchmark, err = formBool(form, "benchmark"); err != nil {
		return req, err
	}
	if req.Forecast, err = formBool(form, "forecast"); err != nil {
		return req, err
	}
	req.Industry = strings.TrimSpace(formValue(form, "industry"))
	if p := formValue(form, "periods"); p != "" {
		if req.Periods, err = strconv.Atoi(p); err != nil {
			return req, errors.New("periods must be an integer")
		}
	}
	return req, nil
}

func readUpload(fh *multipart.FileHeader) (ingest.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return ingest.Upload{}, errors.New("could not read " + fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return ingest.Upload{}, errors.New("could not read " + fh.Filename)
	}
	return ingest.Upload{Name: fh.Filename, Data: data}, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func formBool(form *multipart.Form, key string) (bool, error) {
	v := strings.TrimSpace(formValue(form, key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(key + " must be true or false")
	}
	return b, nil
}

// session looks up the session named in the URL and extends its lifetime.
// It writes a 404 and returns nil when there is none.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *pipeline.Session {
	id := chi.URLParam(r, "id")
	v, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "analysis not found: "+id)
		return nil
	}
	s.sessions.Touch(id)
	return v.(*pipeline.Session)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sess.Snapshot()})
}

// handleDeleteAnalysis stops a run and forgets the session.
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	sess.Abort()
	s.sessions.Invalidate(sess.ID)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"id": sess.ID}})
}

// handleCorrections resumes a run suspended on validation issues.
func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var body CorrectionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if body.Cancel {
		if err := sess.Cancel(); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sess.Snapshot()})
		return
	}

	pending, ok := sess.Pending()
	if !ok {
		writeError(w, http.StatusConflict, pipeline.ErrNotAwaiting.Error())
		return
	}
	if len(body.Values) > len(pending.Records) || len(body.Corrections) > len(pending.Records) {
		writeError(w, http.StatusBadRequest, "more corrections than records")
		return
	}

	records := models.CloneRecords(pending.Records)
	records = statement.ApplyValues(records, body.Values)
	records = statement.ApplyCorrections(records, body.Corrections)
	if err := sess.Resume(records); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sess.Snapshot()})
}

// ════════════════════════════════════════════════════════════════════
// Reports and Exports
// ════════════════════════════════════════════════════════════════════

// finished returns the session's analysis, writing an error response when
// it is missing or not complete.
func (s *Server) finished(w http.ResponseWriter, r *http.Request) *models.AnalysisResult {
	sess := s.session(w, r)
	if sess == nil {
		return nil
	}
	result, err := sess.Result()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil
	}
	return result
}

// reportConfig reads ?lang= and ?year= into a report configuration.
func (s *Server) reportConfig(r *http.Request) (report.ReportConfig, error) {
	cfg := report.DefaultReportConfig()
	if author := s.settings().Report.Author; author != "" {
		cfg.Author = author
	}
	if l := r.URL.Query().Get("lang"); l != "" {
		lang, ok := models.ParseLanguage(l)
		if !ok {
			return cfg, errors.New("unsupported language: " + l)
		}
		cfg.Language = lang
	}
	cfg.Year = strings.TrimSpace(r.URL.Query().Get("year"))
	return cfg, nil
}

func companyNames(result *models.AnalysisResult) []string {
	names := make([]string, 0, len(result.Companies))
	for _, c := range result.Companies {
		if c.Benchmark {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// reportName replaces the extension of the PDF download name.
func reportName(result *models.AnalysisResult, ext string) string {
	return strings.TrimSuffix(report.PDFFileName(companyNames(result)), ".pdf") + ext
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	result := s.finished(w, r)
	if result == nil {
		return
	}
	cfg, err := s.reportConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := report.GeneratePDF(result, cfg, s.settings().Report.FontPath)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeFile(w, "application/pdf", report.PDFFileName(companyNames(result)), data)
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	result := s.finished(w, r)
	if result == nil {
		return
	}
	cfg, err := s.reportConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	html, err := report.GenerateHTML(result, cfg)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	result := s.finished(w, r)
	if result == nil {
		return
	}
	cfg, err := s.reportConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	md, err := report.GenerateMarkdown(result, cfg)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeFile(w, "text/markdown; charset=utf-8", reportName(result, ".md"), []byte(md))
}

func (s *Server) handleRatiosXLSX(w http.ResponseWriter, r *http.Request) {
	result := s.finished(w, r)
	if result == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteRatiosXLSX(&buf, result); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeFile(w, xlsxContentType, report.RatiosXLSXName, buf.Bytes())
}

func (s *Server) handleRatiosCSV(w http.ResponseWriter, r *http.Request) {
	result := s.finished(w, r)
	if result == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteRatiosCSV(&buf, result); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeFile(w, "text/csv; charset=utf-8", "ratios.csv", buf.Bytes())
}

// ════════════════════════════════════════════════════════════════════
// Chat
// ════════════════════════════════════════════════════════════════════

// chatFor returns the session's chat or writes why there is none.
func (s *Server) chatFor(w http.ResponseWriter, sess *pipeline.Session) bool {
	if sess.Chat() != nil {
		return true
	}
	if !s.pipe.HasAI() {
		writeError(w, http.StatusServiceUnavailable, pipeline.ErrAIUnavailable.Error())
		return false
	}
	writeError(w, http.StatusConflict, pipeline.ErrNotReady.Error())
	return false
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil || !s.chatFor(w, sess) {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sess.Chat().History()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil || !s.chatFor(w, sess) {
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	chat := sess.Chat()
	reply, err := chat.Send(r.Context(), req.Message, nil)
	if err != nil {
		requestLogger(r).Warn().Err(err).Str("session", sess.ID).Msg("chat failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ChatResponse{Reply: reply, History: chat.History()},
	})
}
