// Package orch runs the chapter generation pipeline: brief, draft,
// review loop, edit, user confirmation, finalize.
package orch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yewanyuan/Cursor-Writing/internal/agent"
	"github.com/yewanyuan/Cursor-Writing/internal/ontology"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Pipeline tuning constants.
const (
	// QualityThreshold is the minimum review score that skips a rewrite.
	QualityThreshold = 0.7

	// MaxRewriteIterations bounds the review/rewrite loop.
	MaxRewriteIterations = 2

	// MaxRevisions bounds user-requested revision rounds per session.
	MaxRevisions = 5
)

// Status is the pipeline state of a chapter session.
type Status string

// Session states.
const (
	StatusIdle      Status = "idle"
	StatusBriefing  Status = "briefing"
	StatusWriting   Status = "writing"
	StatusReviewing Status = "reviewing"
	StatusEditing   Status = "editing"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Errors returned by the orchestrator.
var (
	// ErrNoSession is returned when feedback arrives for a chapter
	// without an active session.
	ErrNoSession = errors.New("no active session")

	// ErrNotWaiting is returned when feedback arrives while the
	// pipeline is not waiting for it.
	ErrNotWaiting = errors.New("session is not waiting for feedback")

	// ErrUnknownAction is returned for feedback actions other than
	// confirm and revise.
	ErrUnknownAction = errors.New("unknown feedback action")
)

// Feedback actions.
const (
	ActionConfirm = "confirm"
	ActionRevise  = "revise"
)

// Notification reports a pipeline transition to the progress sink,
// including the session's iteration counters at the time of the
// transition.
type Notification struct {
	Project   string
	Chapter   string
	Status    Status
	Message   string
	Rewrites  int
	Revisions int
}

// Notifier receives progress notifications. Implementations must not
// block; the pipeline calls them inline.
type Notifier func(Notification)

// Finalizer distills a finalized chapter into a summary and canon
// records.
type Finalizer interface {
	GenerateSummary(ctx context.Context, project, chapter, finalText string) (*types.ChapterSummary, error)
	ExtractCanon(ctx context.Context, chapter, finalText string) ([]types.Fact, []types.TimelineEvent, []types.CharacterState, error)
}

// OntologyUpdater enriches the structured story ontology from a
// finalized chapter's text.
type OntologyUpdater interface {
	ExtractAndUpdate(ctx context.Context, project, chapter, content string, participants []string) (*ontology.Stats, error)
}

// CanonWriter persists extracted canon, replacing any records the
// chapter produced before.
type CanonWriter interface {
	ReplaceChapter(project, chapter string, facts []types.Fact, events []types.TimelineEvent, states []types.CharacterState) error
}

// FinalStore is the slice of draft persistence finalization and
// session rehydration need.
type FinalStore interface {
	LatestDraft(project, chapter string) (*types.Draft, error)
	SaveFinal(project, chapter, content string) error
	HasFinal(project, chapter string) bool
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Archivist agent.Agent
	Writer    agent.Agent
	Reviewer  agent.Agent
	Editor    agent.Agent
	Finalizer Finalizer
	Drafts    FinalStore
	Canon     CanonWriter

	// Ontology is optional; nil skips ontology enrichment at
	// finalization. Its failures are logged, never fatal.
	Ontology OntologyUpdater

	// Notifier is optional; nil disables progress notifications.
	Notifier Notifier
}

// session tracks one chapter's pipeline state. Sessions live in memory
// only: every artifact is persisted as it is produced, and a Waiting
// session is rehydrated from disk when feedback arrives for a chapter
// this process never generated (see rehydrate).
type session struct {
	status        Status
	version       string
	score         float64
	rewrites      int
	revisions     int
	confirmations []string
	lastErr       string
}

// SessionInfo is a snapshot of a session's state.
type SessionInfo struct {
	Status        Status
	Version       string
	Score         float64
	Rewrites      int
	Revisions     int
	Confirmations []string
	Error         string
}

// StartRequest asks for a chapter to be generated.
type StartRequest struct {
	Project      string
	Chapter      string
	Goal         string
	Participants []string
	WordTarget   int
}

// FeedbackRequest carries the user's verdict on a waiting chapter.
type FeedbackRequest struct {
	Project string
	Chapter string
	Action  string // confirm or revise
	Message string // revision request text for revise
}

// Result reports the outcome of a pipeline operation. Success false
// with a nil error means the operation was rejected, not broken —
// the revision cap is the one case.
type Result struct {
	Project       string
	Chapter       string
	Status        Status
	Version       string
	Score         float64
	Confirmations []string
	Success       bool
	Message       string
}

// Orchestrator drives chapter sessions. Safe for concurrent use; work
// on the same project is serialized.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	locks    map[string]*sync.Mutex
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		logger:   slog.Default().With("component", "orchestrator"),
		sessions: make(map[string]*session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// StartSession runs the pipeline for a chapter up to the Waiting state.
// The returned error is non-nil only for fatal pipeline failures, which
// also leave the session in the Error state.
func (o *Orchestrator) StartSession(ctx context.Context, req StartRequest) (*Result, error) {
	unlock := o.lockProject(req.Project)
	defer unlock()

	s := o.resetSession(req.Project, req.Chapter)

	// Briefing
	o.transition(req.Project, req.Chapter, s, StatusBriefing, "正在整理写作指引")
	if _, err := o.cfg.Archivist.Run(ctx, req.Project, req.Chapter, agent.Options{
		Goal:         req.Goal,
		Participants: req.Participants,
	}); err != nil {
		return nil, o.fail(req.Project, req.Chapter, s, fmt.Errorf("briefing: %w", err))
	}

	// Writing
	o.transition(req.Project, req.Chapter, s, StatusWriting, "正在写作初稿")
	res, err := o.cfg.Writer.Run(ctx, req.Project, req.Chapter, agent.Options{
		Goal:         req.Goal,
		Participants: req.Participants,
		WordTarget:   req.WordTarget,
	})
	if err != nil {
		return nil, o.fail(req.Project, req.Chapter, s, fmt.Errorf("writing: %w", err))
	}
	s.version = res.Version
	s.confirmations = res.Confirmations

	// Review loop. Reviewer failure is non-fatal: a chapter is worth
	// more than a lost review, so the draft passes at the default score.
	review := o.review(ctx, req.Project, req.Chapter, s)
	for s.score < QualityThreshold && s.rewrites < MaxRewriteIterations {
		s.rewrites++
		o.transition(req.Project, req.Chapter, s, StatusWriting,
			fmt.Sprintf("评分 %.2f 低于标准，正在重写（第%d次）", s.score, s.rewrites))
		res, err = o.cfg.Writer.Run(ctx, req.Project, req.Chapter, agent.Options{
			Goal:           req.Goal,
			Participants:   req.Participants,
			WordTarget:     req.WordTarget,
			ReviewFeedback: agent.FeedbackText(review),
		})
		if err != nil {
			return nil, o.fail(req.Project, req.Chapter, s, fmt.Errorf("rewriting: %w", err))
		}
		s.version = res.Version
		s.confirmations = res.Confirmations
		review = o.review(ctx, req.Project, req.Chapter, s)
	}

	// Editing: every draft gets an edit pass, passing or not.
	o.transition(req.Project, req.Chapter, s, StatusEditing, "正在润色")
	edited, err := o.cfg.Editor.Run(ctx, req.Project, req.Chapter, agent.Options{
		ReviewFeedback: agent.FeedbackText(review),
	})
	if err != nil {
		return nil, o.fail(req.Project, req.Chapter, s, fmt.Errorf("editing: %w", err))
	}
	s.version = edited.Version
	s.confirmations = edited.Confirmations

	o.transition(req.Project, req.Chapter, s, StatusWaiting, "草稿就绪，等待确认")
	return o.result(req.Project, req.Chapter, s, true, "草稿就绪，等待确认"), nil
}

// review runs the reviewer and updates the session score. On reviewer
// failure the default passing score is assumed and nil is returned.
func (o *Orchestrator) review(ctx context.Context, project, chapter string, s *session) *types.Review {
	o.transition(project, chapter, s, StatusReviewing, "正在审阅")
	res, err := o.cfg.Reviewer.Run(ctx, project, chapter, agent.Options{})
	if err != nil {
		o.logger.Warn("review failed, assuming default score",
			"project", project, "chapter", chapter, "error", err)
		s.score = agent.DefaultReviewScore
		return nil
	}
	s.score = res.Review.OverallScore
	return res.Review
}

// SubmitFeedback resolves a waiting session: confirm finalizes the
// chapter, revise runs another edit round. Hitting the revision cap
// rejects the request without error.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*Result, error) {
	unlock := o.lockProject(req.Project)
	defer unlock()

	s, ok := o.getSession(req.Project, req.Chapter)
	if !ok {
		var err error
		s, err = o.rehydrate(req.Project, req.Chapter)
		if err != nil {
			return nil, err
		}
	}
	if s.status != StatusWaiting {
		return nil, fmt.Errorf("%w: status %s", ErrNotWaiting, s.status)
	}

	switch req.Action {
	case ActionConfirm:
		return o.finalize(ctx, req.Project, req.Chapter, s)

	case ActionRevise:
		if s.revisions >= MaxRevisions {
			msg := fmt.Sprintf("修改次数已达上限（%d次），请确认定稿或重新开始本章", MaxRevisions)
			o.notify(req.Project, req.Chapter, s, StatusWaiting, msg)
			return o.result(req.Project, req.Chapter, s, false, msg), nil
		}
		s.revisions++
		o.transition(req.Project, req.Chapter, s, StatusEditing,
			fmt.Sprintf("正在按要求修改（第%d次）", s.revisions))
		res, err := o.cfg.Editor.Run(ctx, req.Project, req.Chapter, agent.Options{
			UserFeedback: req.Message,
		})
		if err != nil {
			return nil, o.fail(req.Project, req.Chapter, s, fmt.Errorf("revising: %w", err))
		}
		s.version = res.Version
		s.confirmations = res.Confirmations
		o.transition(req.Project, req.Chapter, s, StatusWaiting, "修改完成，等待确认")
		return o.result(req.Project, req.Chapter, s, true, "修改完成，等待确认"), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

// rehydrate rebuilds a Waiting session from persisted artifacts, so
// feedback works across process restarts: a chapter with a draft but no
// final text is a chapter waiting for a verdict. Iteration counters
// restart, since only the artifacts survive the original process.
func (o *Orchestrator) rehydrate(project, chapter string) (*session, error) {
	if o.cfg.Drafts.HasFinal(project, chapter) {
		return nil, fmt.Errorf("%w: status %s", ErrNotWaiting, StatusCompleted)
	}
	draft, err := o.cfg.Drafts.LatestDraft(project, chapter)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoSession, project, chapter)
	}

	o.logger.Info("rehydrated waiting session from disk",
		"project", project, "chapter", chapter, "version", draft.Version)

	o.mu.Lock()
	defer o.mu.Unlock()
	s := &session{status: StatusWaiting, version: draft.Version}
	o.sessions[sessionKey(project, chapter)] = s
	return s, nil
}

// finalize persists the confirmed draft as the chapter's final text,
// then distills it: summary and canon extraction run concurrently, and
// the extracted records replace whatever the chapter produced before.
func (o *Orchestrator) finalize(ctx context.Context, project, chapter string, s *session) (*Result, error) {
	draft, err := o.cfg.Drafts.LatestDraft(project, chapter)
	if err != nil {
		return nil, o.fail(project, chapter, s, fmt.Errorf("finalize: load draft: %w", err))
	}
	if err := o.cfg.Drafts.SaveFinal(project, chapter, draft.Content); err != nil {
		return nil, o.fail(project, chapter, s, fmt.Errorf("finalize: save final: %w", err))
	}

	var (
		facts  []types.Fact
		events []types.TimelineEvent
		states []types.CharacterState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := o.cfg.Finalizer.GenerateSummary(gctx, project, chapter, draft.Content)
		return err
	})
	g.Go(func() error {
		var err error
		facts, events, states, err = o.cfg.Finalizer.ExtractCanon(gctx, chapter, draft.Content)
		return err
	})
	g.Go(func() error {
		if o.cfg.Ontology == nil {
			return nil
		}
		if _, err := o.cfg.Ontology.ExtractAndUpdate(gctx, project, chapter, draft.Content, nil); err != nil {
			o.logger.Warn("ontology update failed",
				"project", project, "chapter", chapter, "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, o.fail(project, chapter, s, fmt.Errorf("finalize: %w", err))
	}

	if err := o.cfg.Canon.ReplaceChapter(project, chapter, facts, events, states); err != nil {
		return nil, o.fail(project, chapter, s, fmt.Errorf("finalize: persist canon: %w", err))
	}

	msg := fmt.Sprintf("本章定稿，提取 %d 条事实、%d 条事件、%d 条状态",
		len(facts), len(events), len(states))
	o.transition(project, chapter, s, StatusCompleted, msg)
	return o.result(project, chapter, s, true, msg), nil
}

// GetStatus returns a snapshot of a chapter's session. Chapters without
// a session report Idle.
func (o *Orchestrator) GetStatus(project, chapter string) SessionInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionKey(project, chapter)]
	if !ok {
		return SessionInfo{Status: StatusIdle}
	}
	return SessionInfo{
		Status:        s.status,
		Version:       s.version,
		Score:         s.score,
		Rewrites:      s.rewrites,
		Revisions:     s.revisions,
		Confirmations: append([]string(nil), s.confirmations...),
		Error:         s.lastErr,
	}
}

func sessionKey(project, chapter string) string {
	return project + "/" + chapter
}

// lockProject serializes pipeline work per project.
func (o *Orchestrator) lockProject(project string) func() {
	o.mu.Lock()
	lock, ok := o.locks[project]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[project] = lock
	}
	o.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (o *Orchestrator) resetSession(project, chapter string) *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := &session{status: StatusIdle}
	o.sessions[sessionKey(project, chapter)] = s
	return s
}

func (o *Orchestrator) getSession(project, chapter string) (*session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionKey(project, chapter)]
	return s, ok
}

func (o *Orchestrator) transition(project, chapter string, s *session, status Status, msg string) {
	o.mu.Lock()
	s.status = status
	o.mu.Unlock()
	o.logger.Info("pipeline transition",
		"project", project, "chapter", chapter, "status", status, "message", msg)
	o.notify(project, chapter, s, status, msg)
}

func (o *Orchestrator) notify(project, chapter string, s *session, status Status, msg string) {
	if o.cfg.Notifier == nil {
		return
	}
	o.mu.Lock()
	rewrites, revisions := s.rewrites, s.revisions
	o.mu.Unlock()
	o.cfg.Notifier(Notification{
		Project:   project,
		Chapter:   chapter,
		Status:    status,
		Message:   msg,
		Rewrites:  rewrites,
		Revisions: revisions,
	})
}

// fail moves the session to the Error state and returns err.
func (o *Orchestrator) fail(project, chapter string, s *session, err error) error {
	o.mu.Lock()
	s.status = StatusError
	s.lastErr = err.Error()
	o.mu.Unlock()
	o.logger.Error("pipeline failed",
		"project", project, "chapter", chapter, "error", err)
	o.notify(project, chapter, s, StatusError, err.Error())
	return err
}

func (o *Orchestrator) result(project, chapter string, s *session, success bool, msg string) *Result {
	return &Result{
		Project:       project,
		Chapter:       chapter,
		Status:        s.status,
		Version:       s.version,
		Score:         s.score,
		Confirmations: append([]string(nil), s.confirmations...),
		Success:       success,
		Message:       msg,
	}
}
