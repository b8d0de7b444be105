package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yewanyuan/Cursor-Writing/internal/assembler"
	"github.com/yewanyuan/Cursor-Writing/internal/llm"
	"github.com/yewanyuan/Cursor-Writing/internal/storage"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// DefaultWordTarget is the chapter length asked for when the caller
// does not specify one.
const DefaultWordTarget = 3000

const writerSystemPrompt = `你是小说的执笔者。你根据写作指引和参考信息创作章节正文。
要求：
- 严格遵守参考信息中的既成事实、角色设定和写作规则，不得矛盾。
- 需要引入参考信息中没有的具体设定时，用[TO_CONFIRM: 说明]标注。
- 正文放在<draft>标签内，不写任何正文以外的解释。`

// Writer produces chapter drafts from the scene brief and assembled
// context.
type Writer struct {
	chatter Chatter
	builder ContextBuilder
	drafts  Drafts
}

// NewWriter creates a writer.
func NewWriter(chatter Chatter, builder ContextBuilder, drafts Drafts) *Writer {
	return &Writer{chatter: chatter, builder: builder, drafts: drafts}
}

// Name implements Agent.
func (w *Writer) Name() string { return "writer" }

// SystemPrompt implements Agent.
func (w *Writer) SystemPrompt() string { return writerSystemPrompt }

// Run drafts the chapter and saves it as a new version. A scene brief
// must exist; ReviewFeedback, when set, turns the run into a rewrite.
func (w *Writer) Run(ctx context.Context, project, chapter string, opts Options) (*Result, error) {
	brief, err := w.drafts.GetBrief(project, chapter)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoBrief, chapter)
		}
		return nil, fmt.Errorf("load brief: %w", err)
	}

	goal := opts.Goal
	if goal == "" {
		goal = brief.Goal
	}
	participants := opts.Participants
	if len(participants) == 0 {
		for _, c := range brief.Characters {
			participants = append(participants, c.Name)
		}
	}

	bundle, err := w.builder.Assemble(ctx, assembler.Request{
		Project:      project,
		Chapter:      chapter,
		Goal:         goal,
		Participants: participants,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	wordTarget := opts.WordTarget
	if wordTarget <= 0 {
		wordTarget = DefaultWordTarget
	}

	var task strings.Builder
	fmt.Fprintf(&task, "请创作章节「%s」，约%d字。\n\n写作指引：\n%s", chapter, wordTarget, formatBrief(brief))
	if opts.ReviewFeedback != "" {
		fmt.Fprintf(&task, "\n\n上一稿的审阅意见如下，请在重写时解决这些问题：\n%s", opts.ReviewFeedback)
	}

	text, err := chat(ctx, w.chatter, w.Name(), writerSystemPrompt, assembler.FormatContext(bundle), task.String())
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}

	draft := llm.ExtractTag(text, "draft")
	if draft == "" {
		return nil, ErrEmptyResponse
	}

	version, err := w.drafts.SaveDraft(project, chapter, draft)
	if err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}

	return &Result{
		Text:          draft,
		Version:       version,
		Confirmations: llm.ExtractToConfirm(draft),
	}, nil
}

func formatBrief(b *types.SceneBrief) string {
	var sb strings.Builder
	if b.Title != "" {
		fmt.Fprintf(&sb, "标题：%s\n", b.Title)
	}
	fmt.Fprintf(&sb, "目标：%s\n", b.Goal)
	for _, c := range b.Characters {
		fmt.Fprintf(&sb, "角色：%s（%s）— %s\n", c.Name, c.State, c.RoleInChapter)
	}
	if b.TimelineContext != "" {
		fmt.Fprintf(&sb, "时间线：%s\n", b.TimelineContext)
	}
	for _, wc := range b.WorldConstraints {
		fmt.Fprintf(&sb, "设定约束：%s\n", wc)
	}
	if b.StyleReminder != "" {
		fmt.Fprintf(&sb, "风格提示：%s\n", b.StyleReminder)
	}
	for _, f := range b.Forbidden {
		fmt.Fprintf(&sb, "禁止：%s\n", f)
	}
	return strings.TrimRight(sb.String(), "\n")
}

var _ Agent = (*Writer)(nil)
