// Package agent implements the generation roles of the writing
// pipeline: archivist, writer, reviewer, and editor. Each role shares
// the same run contract and differs only in its prompt and the
// artifacts it persists.
package agent

import (
	"context"
	"errors"

	"github.com/yewanyuan/Cursor-Writing/internal/assembler"
	"github.com/yewanyuan/Cursor-Writing/internal/llm"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Common errors returned by agents.
var (
	// ErrNoBrief is returned when the writer runs before a brief exists.
	ErrNoBrief = errors.New("no scene brief for chapter")

	// ErrNoDraft is returned when a stage needs a draft that does not exist.
	ErrNoDraft = errors.New("no draft for chapter")

	// ErrEmptyResponse is returned when the model produced no usable text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Agent is one pipeline role. Run performs the role's stage for a
// chapter and persists whatever artifact the role produces.
type Agent interface {
	// Name identifies the role: "archivist", "writer", "reviewer", "editor".
	Name() string

	// SystemPrompt returns the role's system instruction.
	SystemPrompt() string

	// Run executes the role's stage.
	Run(ctx context.Context, project, chapter string, opts Options) (*Result, error)
}

// Options carries per-run parameters into an agent stage.
type Options struct {
	// Goal is the chapter goal driving context selection and prompts.
	Goal string

	// Participants are characters that must appear in the chapter.
	Participants []string

	// WordTarget is the desired chapter length. 0 uses the default.
	WordTarget int

	// ReviewFeedback carries reviewer findings into a rewrite.
	ReviewFeedback string

	// UserFeedback carries the user's revision request into an edit.
	UserFeedback string
}

// Result is what an agent stage produced.
type Result struct {
	// Text is the stage's main output (draft text, review summary, ...).
	Text string

	// Version is set when the stage saved a draft version.
	Version string

	// Brief is set by the archivist's planning stage.
	Brief *types.SceneBrief

	// Review is set by the reviewer.
	Review *types.Review

	// Confirmations lists [TO_CONFIRM] markers found in a draft.
	Confirmations []string
}

// Chatter sends chat requests on behalf of a named agent role.
type Chatter interface {
	ChatForAgent(ctx context.Context, agent string, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// ContextBuilder assembles the reference bundle for a chapter.
type ContextBuilder interface {
	Assemble(ctx context.Context, req assembler.Request) (*types.ContextBundle, error)
}

// Drafts is the slice of draft persistence the agents need.
type Drafts interface {
	SaveDraft(project, chapter, content string) (string, error)
	LatestDraft(project, chapter string) (*types.Draft, error)
	SaveBrief(project string, brief *types.SceneBrief) error
	GetBrief(project, chapter string) (*types.SceneBrief, error)
	SaveReview(project string, review *types.Review) error
	GetReview(project, chapter, version string) (*types.Review, error)
	SaveSummary(project string, summary *types.ChapterSummary) error
}

// chat assembles the shared message shape: system prompt, reference
// block as a primed exchange, then the task. Priming the reference as
// its own turn keeps long context from bleeding into the instruction.
func chat(ctx context.Context, c Chatter, role, systemPrompt, reference, task string) (string, error) {
	messages := []llm.ChatMessage{
		llm.NewSystemMessage(systemPrompt),
	}
	if reference != "" {
		messages = append(messages,
			llm.NewUserMessage("参考信息：\n\n"+reference),
			llm.NewAssistantMessage("好的，我已了解这些信息。"),
		)
	}
	messages = append(messages, llm.NewUserMessage(task))

	resp, err := c.ChatForAgent(ctx, role, llm.ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Message.Content, nil
}
