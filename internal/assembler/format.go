package assembler

import (
	"fmt"
	"strings"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Prompt rendering. Output is Chinese because the prompts and the prose
// are; section markers keep the model oriented in a long context.

// FormatContext renders a bundle into the reference block handed to an
// agent. Empty sections are omitted.
func FormatContext(bundle *types.ContextBundle) string {
	if bundle == nil {
		return ""
	}
	var sections []string

	if bundle.Style != nil {
		sections = append(sections, "=== 写作风格 ===\n"+formatStyle(bundle.Style))
	}
	if bundle.Rules != nil {
		sections = append(sections, "=== 写作规则 ===\n"+formatRules(bundle.Rules))
	}
	if len(bundle.Characters) > 0 {
		var b strings.Builder
		b.WriteString("=== 角色 ===\n")
		for _, c := range bundle.Characters {
			b.WriteString(formatCharacter(c))
			b.WriteString("\n")
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}
	if len(bundle.World) > 0 {
		var b strings.Builder
		b.WriteString("=== 世界设定 ===\n")
		for _, w := range bundle.World {
			b.WriteString(formatWorld(w))
			b.WriteString("\n")
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}
	if len(bundle.Facts) > 0 {
		var b strings.Builder
		b.WriteString("=== 已确立的事实 ===\n")
		for _, f := range bundle.Facts {
			fmt.Fprintf(&b, "- [%s] %s（出自%s）\n", f.Importance, f.Statement, f.Source)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}
	if len(bundle.Summaries) > 0 {
		var b strings.Builder
		b.WriteString("=== 前文摘要 ===\n")
		for _, s := range bundle.Summaries {
			fmt.Fprintf(&b, "【%s】%s\n", s.Chapter, s.Summary)
			for _, e := range s.KeyEvents {
				fmt.Fprintf(&b, "  - %s\n", e)
			}
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	return strings.Join(sections, "\n\n")
}

func formatCharacter(c types.CharacterCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s：%s\n", c.Name, c.Identity)
	if c.Appearance != "" {
		fmt.Fprintf(&b, "  外貌：%s\n", c.Appearance)
	}
	if len(c.Personality) > 0 {
		fmt.Fprintf(&b, "  性格：%s\n", strings.Join(c.Personality, "、"))
	}
	if c.Motivation != "" {
		fmt.Fprintf(&b, "  动机：%s\n", c.Motivation)
	}
	if c.SpeechPattern != "" {
		fmt.Fprintf(&b, "  语言习惯：%s\n", c.SpeechPattern)
	}
	for _, r := range c.Relationships {
		fmt.Fprintf(&b, "  关系：%s——%s\n", r.Name, r.Description)
	}
	if len(c.Boundaries) > 0 {
		fmt.Fprintf(&b, "  禁区：%s\n", strings.Join(c.Boundaries, "；"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatWorld(w types.WorldCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s（%s）：%s\n", w.Name, w.Category, w.Description)
	for _, r := range w.Rules {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStyle(s *types.StyleCard) string {
	var b strings.Builder
	if s.NarrativeDistance != "" {
		fmt.Fprintf(&b, "叙事距离：%s\n", s.NarrativeDistance)
	}
	if s.Pacing != "" {
		fmt.Fprintf(&b, "节奏：%s\n", s.Pacing)
	}
	if s.SentenceStyle != "" {
		fmt.Fprintf(&b, "句式：%s\n", s.SentenceStyle)
	}
	if len(s.Vocabulary) > 0 {
		fmt.Fprintf(&b, "常用词汇：%s\n", strings.Join(s.Vocabulary, "、"))
	}
	if len(s.TabooWords) > 0 {
		fmt.Fprintf(&b, "禁用词：%s\n", strings.Join(s.TabooWords, "、"))
	}
	for _, p := range s.ExamplePassages {
		fmt.Fprintf(&b, "示例：%s\n", p)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRules(r *types.RulesCard) string {
	var b strings.Builder
	for _, d := range r.Dos {
		fmt.Fprintf(&b, "要：%s\n", d)
	}
	for _, d := range r.Donts {
		fmt.Fprintf(&b, "不要：%s\n", d)
	}
	for _, q := range r.QualityStandards {
		fmt.Fprintf(&b, "标准：%s\n", q)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Ranking texts: what each card is matched against the chapter goal by.

func characterText(c types.CharacterCard) string {
	parts := []string{c.Name, c.Identity, c.Motivation, c.Arc}
	parts = append(parts, c.Personality...)
	for _, r := range c.Relationships {
		parts = append(parts, r.Name, r.Description)
	}
	return strings.Join(parts, " ")
}

func worldText(w types.WorldCard) string {
	parts := []string{w.Name, w.Category, w.Description}
	parts = append(parts, w.Rules...)
	return strings.Join(parts, " ")
}

func summaryText(s types.ChapterSummary) string {
	parts := []string{s.Title, s.Summary}
	parts = append(parts, s.KeyEvents...)
	return strings.Join(parts, " ")
}
