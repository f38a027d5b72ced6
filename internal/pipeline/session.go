package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/finlens/internal/agent"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// State is the lifecycle stage of an analysis session.
type State string

const (
	StateNormalizing        State = "normalizing"
	StateValidating         State = "validating"
	StateAwaitingCorrection State = "awaiting_correction"
	StateComputing          State = "computing"
	StateNarrating          State = "narrating"
	StateReady              State = "ready"
	StateCancelled          State = "cancelled"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateReady || s == StateCancelled || s == StateFailed
}

var (
	ErrCancelled     = errors.New("pipeline: analysis cancelled")
	ErrNotAwaiting   = errors.New("pipeline: session is not awaiting correction")
	ErrNotReady      = errors.New("pipeline: analysis is not complete")
	ErrAIUnavailable = errors.New("pipeline: no AI provider configured")
)

// CorrectionRequest describes the validation gaps of one company. Missing
// maps record positions to their flagged fields, for correction forms.
type CorrectionRequest struct {
	Company string                   `json:"company"`
	Records []models.FinancialRecord `json:"records"`
	Issues  models.ValidationIssues  `json:"issues"`
	Missing map[int][]string         `json:"missing"`
}

func newCorrectionRequest(company string, v models.ValidationResult) CorrectionRequest {
	return CorrectionRequest{
		Company: company,
		Records: models.CloneRecords(v.Records),
		Issues:  v.Issues,
		Missing: statement.MissingFields(v.Records, v.Issues),
	}
}

// CorrectionResolver completes records that failed validation. It returns
// the corrected records, or ErrCancelled when the user gives up. The call
// may block for as long as a human needs.
type CorrectionResolver interface {
	Resolve(ctx context.Context, req CorrectionRequest) ([]models.FinancialRecord, error)
}

// ResolverFunc adapts a function to CorrectionResolver.
type ResolverFunc func(ctx context.Context, req CorrectionRequest) ([]models.FinancialRecord, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, req CorrectionRequest) ([]models.FinancialRecord, error) {
	return f(ctx, req)
}

type resumeMsg struct {
	records []models.FinancialRecord
	cancel  bool
}

// Session is one analysis run. It replaces any ambient state: everything a
// run produces lives here and is read through Snapshot, Result and Chat.
//
// A session is also the CorrectionResolver for runs driven by Start: the
// run suspends in StateAwaitingCorrection until Resume or Cancel.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	state        State
	company      string
	pending      *CorrectionRequest
	result       *models.AnalysisResult
	hasValuation bool
	err          error
	chat         *agent.ChatSession
	updatedAt    time.Time
	cancel       context.CancelFunc

	resume chan resumeMsg
	done   chan struct{}
}

// NewSession creates a session in StateNormalizing.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		state:     StateNormalizing,
		updatedAt: now,
		resume:    make(chan resumeMsg, 1),
		done:      make(chan struct{}),
	}
}

// Snapshot is a point-in-time view of a session, safe to serialise.
type Snapshot struct {
	ID               string                 `json:"id"`
	State            State                  `json:"state"`
	Company          string                 `json:"company,omitempty"`
	Correction       *CorrectionRequest     `json:"correction,omitempty"`
	Result           *models.AnalysisResult `json:"result,omitempty"`
	HasValuationData bool                   `json:"has_valuation_data"`
	Error            string                 `json:"error,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Snapshot returns the session's current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:               s.ID,
		State:            s.state,
		Company:          s.company,
		Correction:       s.pending,
		Result:           s.result,
		HasValuationData: s.hasValuation,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.updatedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the outstanding correction request, if any.
func (s *Session) Pending() (CorrectionRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return CorrectionRequest{}, false
	}
	return *s.pending, true
}

// Resolve suspends the run until Resume or Cancel is called.
func (s *Session) Resolve(ctx context.Context, req CorrectionRequest) ([]models.FinancialRecord, error) {
	s.mu.Lock()
	s.pending = &req
	s.setState(StateAwaitingCorrection)
	s.mu.Unlock()

	select {
	case msg := <-s.resume:
		if msg.cancel {
			return nil, ErrCancelled
		}
		return msg.records, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resume hands corrected records to a suspended run.
func (s *Session) Resume(records []models.FinancialRecord) error {
	return s.deliver(resumeMsg{records: records})
}

// Cancel dismisses the outstanding correction. For the primary company
// this ends the run; a custom-benchmark peer is skipped instead.
func (s *Session) Cancel() error {
	return s.deliver(resumeMsg{cancel: true})
}

// Abort stops the run whatever it is doing.
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) deliver(msg resumeMsg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingCorrection {
		return ErrNotAwaiting
	}
	s.pending = nil
	s.setState(StateValidating)
	s.resume <- msg
	return nil
}

// Done is closed when the run reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the run finishes and returns its outcome.
func (s *Session) Wait(ctx context.Context) (*models.AnalysisResult, error) {
	select {
	case <-s.done:
		return s.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the finished analysis, the run's error, or ErrNotReady.
func (s *Session) Result() (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.err != nil:
		return nil, s.err
	case s.result == nil:
		return nil, ErrNotReady
	}
	return s.result, nil
}

// HasValuationData reports whether any analyzed company carried market
// capitalization and dividends for every period.
func (s *Session) HasValuationData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasValuation
}

// Chat returns the follow-up chat, or nil before the run is ready or when
// no AI is configured.
func (s *Session) Chat() *agent.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

func (s *Session) setState(state State) {
	s.state = state
	s.updatedAt = time.Now()
}

func (s *Session) enter(state State, company string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(state)
	s.company = company
}

func (s *Session) markValuation() {
	s.mu.Lock()
	s.hasValuation = true
	s.mu.Unlock()
}

func (s *Session) finish(result *models.AnalysisResult, chat *agent.ChatSession, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.pending = nil
	s.company = ""
	switch {
	case err == nil:
		s.result = result
		s.chat = chat
		s.setState(StateReady)
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		s.err = err
		s.setState(StateCancelled)
	default:
		s.err = err
		s.setState(StateFailed)
	}
	close(s.done)
}
