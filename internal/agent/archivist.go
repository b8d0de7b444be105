package agent

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yewanyuan/Cursor-Writing/internal/assembler"
	"github.com/yewanyuan/Cursor-Writing/internal/llm"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

const archivistSystemPrompt = `你是小说项目的档案员。你负责三件事：
1. 在写作前整理章节编写指引（brief），明确目标、出场角色、时间线背景和禁止事项。
2. 在章节定稿后撰写客观的章节摘要。
3. 从定稿中提取既成事实、时间线事件和角色状态，保持设定一致。
你只依据给出的参考信息和章节内容回答，不自行虚构设定。`

// Archivist prepares scene briefs before writing and distills canon
// after a chapter is finalized.
type Archivist struct {
	chatter Chatter
	builder ContextBuilder
	drafts  Drafts
}

// NewArchivist creates an archivist.
func NewArchivist(chatter Chatter, builder ContextBuilder, drafts Drafts) *Archivist {
	return &Archivist{chatter: chatter, builder: builder, drafts: drafts}
}

// Name implements Agent.
func (a *Archivist) Name() string { return "archivist" }

// SystemPrompt implements Agent.
func (a *Archivist) SystemPrompt() string { return archivistSystemPrompt }

// Run produces and persists the chapter's scene brief.
func (a *Archivist) Run(ctx context.Context, project, chapter string, opts Options) (*Result, error) {
	bundle, err := a.builder.Assemble(ctx, assembler.Request{
		Project:      project,
		Chapter:      chapter,
		Goal:         opts.Goal,
		Participants: opts.Participants,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	task := fmt.Sprintf(`请为章节「%s」编写写作指引。章节目标：%s
以YAML格式输出，放在<brief>标签内，字段：
chapter, title, goal, characters (name/state/role_in_chapter),
timeline_context, world_constraints, style_reminder, forbidden`, chapter, opts.Goal)

	text, err := chat(ctx, a.chatter, a.Name(), archivistSystemPrompt, assembler.FormatContext(bundle), task)
	if err != nil {
		return nil, fmt.Errorf("generate brief: %w", err)
	}

	brief := parseBrief(text, chapter, opts.Goal)
	if err := a.drafts.SaveBrief(project, brief); err != nil {
		return nil, fmt.Errorf("save brief: %w", err)
	}

	return &Result{Text: text, Brief: brief}, nil
}

// parseBrief decodes the YAML inside <brief> tags. Output that fails
// to parse still yields a minimal usable brief carrying the raw text.
func parseBrief(text, chapter, goal string) *types.SceneBrief {
	var brief types.SceneBrief
	raw := llm.ExtractTag(text, "brief")
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "```yaml")
	raw = strings.Trim(raw, "`\n ")
	if err := yaml.Unmarshal([]byte(raw), &brief); err != nil || brief.Goal == "" {
		brief = types.SceneBrief{Goal: goal, StyleReminder: strings.TrimSpace(text)}
	}
	brief.Chapter = chapter
	return &brief
}

// GenerateSummary writes and persists the summary of a finalized
// chapter.
func (a *Archivist) GenerateSummary(ctx context.Context, project, chapter, finalText string) (*types.ChapterSummary, error) {
	task := fmt.Sprintf(`以下是章节「%s」的定稿，请撰写摘要。
在<summary>标签内给出200字以内的情节摘要；
在<key_events>标签内每行以"- "列出关键事件。

%s`, chapter, finalText)

	text, err := chat(ctx, a.chatter, a.Name(), archivistSystemPrompt, "", task)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	summary := &types.ChapterSummary{
		Chapter:   chapter,
		Summary:   llm.ExtractTag(text, "summary"),
		KeyEvents: parseBullets(llm.ExtractTag(text, "key_events")),
	}
	if err := a.drafts.SaveSummary(project, summary); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	return summary, nil
}

// ExtractCanon pulls facts, timeline events, and character states out
// of a finalized chapter. Persistence is the caller's job; extraction
// and storage are separated so a re-extract can replace instead of
// append.
func (a *Archivist) ExtractCanon(ctx context.Context, chapter, finalText string) ([]types.Fact, []types.TimelineEvent, []types.CharacterState, error) {
	task := fmt.Sprintf(`以下是章节「%s」的定稿。请提取其中确立的设定，按行输出：
FACT|事实陈述|置信度(0-1)|相关角色(分号分隔)|重要性(critical/normal/minor)
EVENT|时间|事件|参与者(分号分隔)|地点
STATE|角色名|位置|情绪状态|目标(分号分隔)|物品(分号分隔)|伤势(分号分隔)|关系变化(名字:描述)
只输出这些行，不要其他内容。

%s`, chapter, finalText)

	text, err := chat(ctx, a.chatter, a.Name(), archivistSystemPrompt, "", task)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("extract canon: %w", err)
	}

	return llm.ParseFacts(text, chapter),
		llm.ParseTimeline(text, chapter),
		llm.ParseStates(text, chapter),
		nil
}

func parseBullets(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "- "); ok {
			if after = strings.TrimSpace(after); after != "" {
				items = append(items, after)
			}
		}
	}
	return items
}

var _ Agent = (*Archivist)(nil)
