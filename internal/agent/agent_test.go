package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yewanyuan/Cursor-Writing/internal/assembler"
	"github.com/yewanyuan/Cursor-Writing/internal/llm"
	"github.com/yewanyuan/Cursor-Writing/internal/storage"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// stubChatter replays scripted responses and records requests.
type stubChatter struct {
	responses []string
	calls     int
	requests  []llm.ChatRequest
	roles     []string
}

func (s *stubChatter) ChatForAgent(_ context.Context, role string, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.requests = append(s.requests, req)
	s.roles = append(s.roles, role)
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return &llm.ChatResponse{Message: llm.NewAssistantMessage(s.responses[idx])}, nil
}

func (s *stubChatter) lastTask() string {
	req := s.requests[len(s.requests)-1]
	return req.Messages[len(req.Messages)-1].Content
}

// stubBuilder returns a fixed bundle.
type stubBuilder struct {
	bundle *types.ContextBundle
	reqs   []assembler.Request
}

func (s *stubBuilder) Assemble(_ context.Context, req assembler.Request) (*types.ContextBundle, error) {
	s.reqs = append(s.reqs, req)
	if s.bundle != nil {
		return s.bundle, nil
	}
	return &types.ContextBundle{}, nil
}

// memDrafts is an in-memory Drafts implementation.
type memDrafts struct {
	briefs    map[string]*types.SceneBrief
	drafts    map[string][]string
	reviews   map[string]*types.Review
	summaries map[string]*types.ChapterSummary
}

func newMemDrafts() *memDrafts {
	return &memDrafts{
		briefs:    make(map[string]*types.SceneBrief),
		drafts:    make(map[string][]string),
		reviews:   make(map[string]*types.Review),
		summaries: make(map[string]*types.ChapterSummary),
	}
}

func (m *memDrafts) SaveDraft(_, chapter, content string) (string, error) {
	m.drafts[chapter] = append(m.drafts[chapter], content)
	return fmt.Sprintf("v%d", len(m.drafts[chapter])), nil
}

func (m *memDrafts) LatestDraft(_, chapter string) (*types.Draft, error) {
	versions := m.drafts[chapter]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, chapter)
	}
	return &types.Draft{
		Chapter: chapter,
		Version: fmt.Sprintf("v%d", len(versions)),
		Content: versions[len(versions)-1],
	}, nil
}

func (m *memDrafts) SaveBrief(_ string, brief *types.SceneBrief) error {
	m.briefs[brief.Chapter] = brief
	return nil
}

func (m *memDrafts) GetBrief(_, chapter string) (*types.SceneBrief, error) {
	brief, ok := m.briefs[chapter]
	if !ok {
		return nil, fmt.Errorf("%w: brief %s", storage.ErrNotFound, chapter)
	}
	return brief, nil
}

func (m *memDrafts) SaveReview(_ string, review *types.Review) error {
	m.reviews[review.Chapter+"/"+review.DraftVersion] = review
	return nil
}

func (m *memDrafts) GetReview(_, chapter, version string) (*types.Review, error) {
	review, ok := m.reviews[chapter+"/"+version]
	if !ok {
		return nil, fmt.Errorf("%w: review %s", storage.ErrNotFound, version)
	}
	return review, nil
}

func (m *memDrafts) SaveSummary(_ string, summary *types.ChapterSummary) error {
	m.summaries[summary.Chapter] = summary
	return nil
}

func TestArchivist_RunParsesBrief(t *testing.T) {
	chatter := &stubChatter{responses: []string{`<brief>
chapter: ch1
title: 北港
goal: 主角抵达北港
characters:
  - name: 林远
    state: 疲惫
    role_in_chapter: 主视角
forbidden:
  - 不要提前揭露身世
</brief>`}}
	drafts := newMemDrafts()
	a := NewArchivist(chatter, &stubBuilder{}, drafts)

	res, err := a.Run(context.Background(), "novel", "ch1", Options{Goal: "主角抵达北港", Participants: []string{"林远"}})
	require.NoError(t, err)
	require.NotNil(t, res.Brief)

	assert.Equal(t, "ch1", res.Brief.Chapter)
	assert.Equal(t, "主角抵达北港", res.Brief.Goal)
	require.Len(t, res.Brief.Characters, 1)
	assert.Equal(t, "林远", res.Brief.Characters[0].Name)
	assert.Equal(t, []string{"不要提前揭露身世"}, res.Brief.Forbidden)

	saved, err := drafts.GetBrief("novel", "ch1")
	require.NoError(t, err)
	assert.Equal(t, res.Brief, saved)
}

func TestArchivist_RunMalformedBriefFallsBack(t *testing.T) {
	chatter := &stubChatter{responses: []string{"这不是YAML，只是一段指引。"}}
	drafts := newMemDrafts()
	a := NewArchivist(chatter, &stubBuilder{}, drafts)

	res, err := a.Run(context.Background(), "novel", "ch1", Options{Goal: "目标"})
	require.NoError(t, err)
	assert.Equal(t, "目标", res.Brief.Goal)
	assert.Equal(t, "这不是YAML，只是一段指引。", res.Brief.StyleReminder)
	assert.Equal(t, "ch1", res.Brief.Chapter)
}

func TestArchivist_GenerateSummary(t *testing.T) {
	chatter := &stubChatter{responses: []string{`<summary>主角抵达北港并入住客栈。</summary>
<key_events>
- 抵达北港
- 入住客栈
</key_events>`}}
	drafts := newMemDrafts()
	a := NewArchivist(chatter, &stubBuilder{}, drafts)

	summary, err := a.GenerateSummary(context.Background(), "novel", "ch1", "正文……")
	require.NoError(t, err)
	assert.Equal(t, "主角抵达北港并入住客栈。", summary.Summary)
	assert.Equal(t, []string{"抵达北港", "入住客栈"}, summary.KeyEvents)
	assert.Contains(t, drafts.summaries, "ch1")
}

func TestArchivist_ExtractCanon(t *testing.T) {
	chatter := &stubChatter{responses: []string{`FACT|林远有银剑|0.9|林远|critical
FACT|北港黄昏闭门|0.7||normal
FACT|客栈在港口东侧|0.6||minor
EVENT|第一天黄昏|林远入城|林远|北港
EVENT|当晚|入住客栈|林远;阿芸|客栈
STATE|林远|北港客栈|疲惫|休整|银剑||`}}
	a := NewArchivist(chatter, &stubBuilder{}, newMemDrafts())

	facts, events, states, err := a.ExtractCanon(context.Background(), "ch1", "正文……")
	require.NoError(t, err)
	assert.Len(t, facts, 3)
	assert.Len(t, events, 2)
	require.Len(t, states, 1)
	assert.Equal(t, "ch1", facts[0].Source)
	assert.Equal(t, "林远", states[0].Character)
}

func TestWriter_RequiresBrief(t *testing.T) {
	w := NewWriter(&stubChatter{responses: []string{"x"}}, &stubBuilder{}, newMemDrafts())

	_, err := w.Run(context.Background(), "novel", "ch1", Options{})
	assert.ErrorIs(t, err, ErrNoBrief)
}

func TestWriter_SavesDraftAndConfirmations(t *testing.T) {
	chatter := &stubChatter{responses: []string{
		"<draft>林远走进客栈，把[TO_CONFIRM: 佩剑的名字]放在桌上。</draft>",
	}}
	builder := &stubBuilder{}
	drafts := newMemDrafts()
	drafts.briefs["ch1"] = &types.SceneBrief{
		Chapter:    "ch1",
		Goal:       "入住客栈",
		Characters: []types.BriefCharacter{{Name: "林远"}},
	}
	w := NewWriter(chatter, builder, drafts)

	res, err := w.Run(context.Background(), "novel", "ch1", Options{})
	require.NoError(t, err)

	assert.Equal(t, "v1", res.Version)
	assert.Contains(t, res.Text, "林远走进客栈")
	assert.Equal(t, []string{"佩剑的名字"}, res.Confirmations)

	require.Len(t, builder.reqs, 1)
	assert.Equal(t, "入住客栈", builder.reqs[0].Goal, "goal falls back to the brief")
	assert.Equal(t, []string{"林远"}, builder.reqs[0].Participants)
}

func TestWriter_RewriteCarriesReviewFeedback(t *testing.T) {
	chatter := &stubChatter{responses: []string{"<draft>重写稿</draft>"}}
	drafts := newMemDrafts()
	drafts.briefs["ch1"] = &types.SceneBrief{Chapter: "ch1", Goal: "目标"}
	w := NewWriter(chatter, &stubBuilder{}, drafts)

	_, err := w.Run(context.Background(), "novel", "ch1", Options{ReviewFeedback: "节奏太慢"})
	require.NoError(t, err)
	assert.Contains(t, chatter.lastTask(), "节奏太慢")
}

func TestReviewer_ParsesScoreAndIssues(t *testing.T) {
	chatter := &stubChatter{responses: []string{`SCORE|0.55
ISSUE|consistency|银剑在上一章已经丢失|改为空手|critical
ISSUE|style|连用三个感叹号|删去|minor
<review_summary>一致性有硬伤，文风小问题。</review_summary>`}}
	drafts := newMemDrafts()
	drafts.drafts["ch1"] = []string{"草稿正文"}
	r := NewReviewer(chatter, drafts)

	res, err := r.Run(context.Background(), "novel", "ch1", Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Review)

	assert.Equal(t, 0.55, res.Review.OverallScore)
	require.Len(t, res.Review.Issues, 2)
	assert.Equal(t, "consistency", res.Review.Issues[0].Category)
	assert.Equal(t, "critical", res.Review.Issues[0].Severity)
	assert.Equal(t, "一致性有硬伤，文风小问题。", res.Review.Summary)
	assert.Equal(t, "v1", res.Review.DraftVersion)
	assert.Contains(t, drafts.reviews, "ch1/v1")
}

func TestReviewer_DefaultScoreOnMissingLine(t *testing.T) {
	chatter := &stubChatter{responses: []string{"看起来不错。"}}
	drafts := newMemDrafts()
	drafts.drafts["ch1"] = []string{"草稿"}
	r := NewReviewer(chatter, drafts)

	res, err := r.Run(context.Background(), "novel", "ch1", Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultReviewScore, res.Review.OverallScore)
}

func TestReviewer_ScoreClamped(t *testing.T) {
	assert.Equal(t, 1.0, parseScore("SCORE|1.8"))
	assert.Equal(t, 0.0, parseScore("SCORE|0"))
}

func TestReviewer_RequiresDraft(t *testing.T) {
	r := NewReviewer(&stubChatter{responses: []string{"x"}}, newMemDrafts())
	_, err := r.Run(context.Background(), "novel", "ch1", Options{})
	assert.ErrorIs(t, err, ErrNoDraft)
}

func TestEditor_SavesNewVersion(t *testing.T) {
	chatter := &stubChatter{responses: []string{"<draft>润色后的正文</draft>"}}
	drafts := newMemDrafts()
	drafts.drafts["ch1"] = []string{"原始草稿"}
	e := NewEditor(chatter, drafts)

	res, err := e.Run(context.Background(), "novel", "ch1", Options{
		ReviewFeedback: "对白太平",
		UserFeedback:   "结尾加一场雨",
	})
	require.NoError(t, err)

	assert.Equal(t, "v2", res.Version)
	assert.Equal(t, "润色后的正文", res.Text)
	assert.Contains(t, chatter.lastTask(), "对白太平")
	assert.Contains(t, chatter.lastTask(), "结尾加一场雨")
	assert.Contains(t, chatter.lastTask(), "原始草稿")
}

func TestFeedbackText(t *testing.T) {
	review := &types.Review{
		Issues: []types.ReviewIssue{
			{Category: "plot", Severity: "major", Problem: "转折突兀", Suggestion: "加铺垫"},
		},
		Summary: "总体可读。",
	}

	text := FeedbackText(review)
	assert.Contains(t, text, "[plot/major] 转折突兀")
	assert.Contains(t, text, "加铺垫")
	assert.Contains(t, text, "总体可读。")

	assert.Empty(t, FeedbackText(nil))
}
