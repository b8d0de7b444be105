package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yewanyuan/Cursor-Writing/internal/llm"
	"github.com/yewanyuan/Cursor-Writing/internal/storage"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// DefaultReviewScore is assumed when the model's score cannot be
// parsed. The pipeline treats an unparseable review as passable rather
// than blocking the chapter on it.
const DefaultReviewScore = 0.8

const reviewerSystemPrompt = `你是小说的审稿人。你对照参考信息审阅草稿，检查：
1. 与既成事实、角色设定、世界规则的一致性；
2. 文风是否符合写作风格与规则；
3. 情节与角色行为是否成立。
输出格式：
SCORE|总分(0-1)
ISSUE|类别(consistency/style/plot/character)|问题|建议|严重度(minor/major/critical)
最后在<review_summary>标签内给出一段总评。`

var scoreLineRe = regexp.MustCompile(`SCORE\|([0-9.]+)`)

// Reviewer scores drafts against the assembled context and persists the
// review.
type Reviewer struct {
	chatter Chatter
	drafts  Drafts
}

// NewReviewer creates a reviewer.
func NewReviewer(chatter Chatter, drafts Drafts) *Reviewer {
	return &Reviewer{chatter: chatter, drafts: drafts}
}

// Name implements Agent.
func (r *Reviewer) Name() string { return "reviewer" }

// SystemPrompt implements Agent.
func (r *Reviewer) SystemPrompt() string { return reviewerSystemPrompt }

// Run reviews the chapter's latest draft and saves the review.
func (r *Reviewer) Run(ctx context.Context, project, chapter string, opts Options) (*Result, error) {
	draft, err := r.drafts.LatestDraft(project, chapter)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoDraft, chapter)
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}

	reference := ""
	if brief, err := r.drafts.GetBrief(project, chapter); err == nil {
		reference = "写作指引：\n" + formatBrief(brief)
	}

	task := fmt.Sprintf("请审阅章节「%s」的草稿（%s）：\n\n%s", chapter, draft.Version, draft.Content)

	text, err := chat(ctx, r.chatter, r.Name(), reviewerSystemPrompt, reference, task)
	if err != nil {
		return nil, fmt.Errorf("generate review: %w", err)
	}

	review := &types.Review{
		Chapter:      chapter,
		DraftVersion: draft.Version,
		OverallScore: parseScore(text),
		Issues:       parseIssues(text),
		Summary:      llm.ExtractTag(text, "review_summary"),
	}
	if err := r.drafts.SaveReview(project, review); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}

	return &Result{Text: text, Review: review}, nil
}

// parseScore reads the SCORE| line, clamped to [0,1]. Missing or
// malformed scores fall back to DefaultReviewScore.
func parseScore(text string) float64 {
	m := scoreLineRe.FindStringSubmatch(text)
	if m == nil {
		return DefaultReviewScore
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return DefaultReviewScore
	}
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func parseIssues(text string) []types.ReviewIssue {
	var issues []types.ReviewIssue
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "ISSUE|") {
			continue
		}
		parts := strings.Split(line[len("ISSUE|"):], "|")
		if len(parts) < 2 {
			continue
		}
		issue := types.ReviewIssue{
			Category: strings.TrimSpace(parts[0]),
			Problem:  strings.TrimSpace(parts[1]),
			Severity: "minor",
		}
		if len(parts) > 2 {
			issue.Suggestion = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 {
			if sev := strings.ToLower(strings.TrimSpace(parts[3])); sev == "minor" || sev == "major" || sev == "critical" {
				issue.Severity = sev
			}
		}
		issues = append(issues, issue)
	}
	return issues
}

// FeedbackText flattens a review into the feedback block handed to a
// rewrite or edit pass.
func FeedbackText(review *types.Review) string {
	if review == nil {
		return ""
	}
	var sb strings.Builder
	for _, issue := range review.Issues {
		fmt.Fprintf(&sb, "- [%s/%s] %s", issue.Category, issue.Severity, issue.Problem)
		if issue.Suggestion != "" {
			fmt.Fprintf(&sb, "（建议：%s）", issue.Suggestion)
		}
		sb.WriteString("\n")
	}
	if review.Summary != "" {
		sb.WriteString(review.Summary)
	}
	return strings.TrimRight(sb.String(), "\n")
}

var _ Agent = (*Reviewer)(nil)
