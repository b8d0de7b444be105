package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yewanyuan/Cursor-Writing/internal/llm"
	"github.com/yewanyuan/Cursor-Writing/internal/storage"
)

const editorSystemPrompt = `你是小说的编辑。你在不改变情节走向的前提下打磨草稿：
修正审阅指出的问题，落实用户的修改要求，收紧语言，保持文风一致。
修改后的全文放在<draft>标签内，不写任何正文以外的解释。`

// Editor polishes the latest draft, folding in review findings and
// user feedback, and saves the result as a new version.
type Editor struct {
	chatter Chatter
	drafts  Drafts
}

// NewEditor creates an editor.
func NewEditor(chatter Chatter, drafts Drafts) *Editor {
	return &Editor{chatter: chatter, drafts: drafts}
}

// Name implements Agent.
func (e *Editor) Name() string { return "editor" }

// SystemPrompt implements Agent.
func (e *Editor) SystemPrompt() string { return editorSystemPrompt }

// Run edits the chapter's latest draft. ReviewFeedback and UserFeedback
// are both optional; with neither the pass is a plain polish.
func (e *Editor) Run(ctx context.Context, project, chapter string, opts Options) (*Result, error) {
	draft, err := e.drafts.LatestDraft(project, chapter)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoDraft, chapter)
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}

	var task strings.Builder
	fmt.Fprintf(&task, "请修改章节「%s」的草稿（%s）。", chapter, draft.Version)
	if opts.ReviewFeedback != "" {
		fmt.Fprintf(&task, "\n\n审阅意见：\n%s", opts.ReviewFeedback)
	}
	if opts.UserFeedback != "" {
		fmt.Fprintf(&task, "\n\n用户的修改要求：\n%s", opts.UserFeedback)
	}
	fmt.Fprintf(&task, "\n\n草稿全文：\n%s", draft.Content)

	text, err := chat(ctx, e.chatter, e.Name(), editorSystemPrompt, "", task.String())
	if err != nil {
		return nil, fmt.Errorf("generate edit: %w", err)
	}

	edited := llm.ExtractTag(text, "draft")
	if edited == "" {
		return nil, ErrEmptyResponse
	}

	version, err := e.drafts.SaveDraft(project, chapter, edited)
	if err != nil {
		return nil, fmt.Errorf("save edited draft: %w", err)
	}

	return &Result{
		Text:          edited,
		Version:       version,
		Confirmations: llm.ExtractToConfirm(edited),
	}, nil
}

var _ Agent = (*Editor)(nil)
