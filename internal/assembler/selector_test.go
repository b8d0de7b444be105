package assembler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yewanyuan/Cursor-Writing/internal/storage"
	"github.com/yewanyuan/Cursor-Writing/internal/token"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

type stubReaders struct {
	characters []types.CharacterCard
	world      []types.WorldCard
	style      *types.StyleCard
	rules      *types.RulesCard
	facts      []types.Fact
	summaries  []types.ChapterSummary
	factsErr   error
}

func (s *stubReaders) ListCharacters(string) ([]types.CharacterCard, error) {
	return s.characters, nil
}
func (s *stubReaders) ListWorld(string) ([]types.WorldCard, error) { return s.world, nil }
func (s *stubReaders) GetStyle(string) (*types.StyleCard, error) {
	if s.style == nil {
		return nil, fmt.Errorf("%w: style", storage.ErrNotFound)
	}
	return s.style, nil
}
func (s *stubReaders) GetRules(string) (*types.RulesCard, error) {
	if s.rules == nil {
		return nil, fmt.Errorf("%w: rules", storage.ErrNotFound)
	}
	return s.rules, nil
}
func (s *stubReaders) ListFacts(string) ([]types.Fact, error) { return s.facts, s.factsErr }
func (s *stubReaders) PreviousSummaries(string, string) ([]types.ChapterSummary, error) {
	return s.summaries, nil
}

func newTestAssembler(readers *stubReaders) *Assembler {
	budgeter := token.NewBudgeter(types.DefaultBudgetConfig(), nil)
	return New(readers, readers, readers, budgeter)
}

func character(name, identity string) types.CharacterCard {
	return types.CharacterCard{Name: name, Identity: identity}
}

func TestAssemble_ParticipantsAlwaysIncluded(t *testing.T) {
	readers := &stubReaders{
		characters: []types.CharacterCard{
			character("林远", "流亡剑客"),
			character("阿芸", "北港客栈老板"),
			character("税吏", "和剧情毫无关系的人"),
		},
	}
	a := newTestAssembler(readers)

	bundle, err := a.Assemble(context.Background(), Request{
		Project:      "novel",
		Chapter:      "ch2",
		Goal:         "林远在北港客栈与阿芸重逢",
		Participants: []string{"税吏"},
	})
	require.NoError(t, err)

	names := characterNames(bundle.Characters)
	assert.Contains(t, names, "税吏", "participant included regardless of relevance")
	assert.Contains(t, names, "林远")
}

func TestAssemble_IrrelevantCharactersDropped(t *testing.T) {
	readers := &stubReaders{
		characters: []types.CharacterCard{
			character("林远", "流亡剑客 北港"),
			character("园丁", "皇城御花园的老园丁 修剪花草"),
		},
	}
	a := newTestAssembler(readers)

	bundle, err := a.Assemble(context.Background(), Request{
		Project: "novel",
		Chapter: "ch2",
		Goal:    "林远抵达北港 剑客",
	})
	require.NoError(t, err)

	names := characterNames(bundle.Characters)
	assert.Contains(t, names, "林远")
	assert.NotContains(t, names, "园丁")
}

func TestAssemble_WorldFallback(t *testing.T) {
	readers := &stubReaders{
		world: []types.WorldCard{
			{Name: "御花园", Description: "皇城的花园"},
			{Name: "南疆", Description: "瘴气弥漫"},
			{Name: "西域", Description: "沙漠商路"},
			{Name: "东海", Description: "渔村群岛"},
		},
	}
	a := newTestAssembler(readers)

	bundle, err := a.Assemble(context.Background(), Request{
		Project: "novel",
		Chapter: "ch1",
		Goal:    "completely unrelated latin goal",
	})
	require.NoError(t, err)

	assert.Len(t, bundle.World, worldFallback, "falls back to the first few world cards")
	assert.Equal(t, "御花园", bundle.World[0].Name)
}

func TestAssemble_MissingStyleAndRulesTolerated(t *testing.T) {
	a := newTestAssembler(&stubReaders{})

	bundle, err := a.Assemble(context.Background(), Request{Project: "novel", Chapter: "ch1", Goal: "目标"})
	require.NoError(t, err)
	assert.Nil(t, bundle.Style)
	assert.Nil(t, bundle.Rules)
}

func TestAssemble_ReaderErrorPropagates(t *testing.T) {
	a := newTestAssembler(&stubReaders{factsErr: fmt.Errorf("disk gone")})

	_, err := a.Assemble(context.Background(), Request{Project: "novel", Chapter: "ch1"})
	assert.Error(t, err)
}

func TestSelectFacts_ImportanceThenRecency(t *testing.T) {
	a := newTestAssembler(&stubReaders{})

	facts := []types.Fact{
		{ID: "1", Statement: "minor old", Importance: types.ImportanceMinor},
		{ID: "2", Statement: "critical old", Importance: types.ImportanceCritical},
		{ID: "3", Statement: "normal", Importance: types.ImportanceNormal},
		{ID: "4", Statement: "critical new", Importance: types.ImportanceCritical},
	}

	got := a.selectFacts("", facts)
	require.Len(t, got, 4)
	assert.Equal(t, "critical new", got[0].Statement, "critical facts first, newest first")
	assert.Equal(t, "critical old", got[1].Statement)
	assert.Equal(t, "normal", got[2].Statement)
	assert.Equal(t, "minor old", got[3].Statement)
}

func TestSelectFacts_BudgetStopsAdmission(t *testing.T) {
	cfg := types.DefaultBudgetConfig()
	cfg.TotalTokens = 100 // canon budget = 10 tokens
	budgeter := token.NewBudgeter(cfg, nil)
	readers := &stubReaders{}
	a := New(readers, readers, readers, budgeter)

	facts := []types.Fact{
		{ID: "1", Statement: "abcdabcdabcdabcd", Importance: types.ImportanceCritical}, // 4 tokens
		{ID: "2", Statement: "abcdabcdabcdabcd", Importance: types.ImportanceCritical}, // 4 tokens
		{ID: "3", Statement: "abcdabcdabcdabcd", Importance: types.ImportanceNormal},   // overflows
	}

	got := a.selectFacts("", facts)
	assert.Len(t, got, 2)
}

func TestSelectSummaries_RecencyBlend(t *testing.T) {
	a := newTestAssembler(&stubReaders{})

	var summaries []types.ChapterSummary
	for i := 1; i <= 8; i++ {
		summaries = append(summaries, types.ChapterSummary{
			Chapter: fmt.Sprintf("ch%d", i),
			Summary: "harbor journey",
		})
	}

	got := a.selectSummaries("unrelated goal text", summaries)
	require.Len(t, got, maxSummaries)
	// With equal relevance, recency decides: the five most recent win,
	// returned chronologically.
	assert.Equal(t, "ch4", got[0].Chapter)
	assert.Equal(t, "ch8", got[len(got)-1].Chapter)
}

func TestSelectSummaries_RelevantOldChapterSurvives(t *testing.T) {
	a := newTestAssembler(&stubReaders{})

	summaries := []types.ChapterSummary{
		{Chapter: "ch1", Summary: "silver blade oath in the harbor temple"},
		{Chapter: "ch2", Summary: "quiet farming"},
		{Chapter: "ch3", Summary: "quiet farming"},
		{Chapter: "ch4", Summary: "quiet farming"},
		{Chapter: "ch5", Summary: "quiet farming"},
		{Chapter: "ch6", Summary: "quiet farming"},
	}

	got := a.selectSummaries("the silver blade oath temple harbor", summaries)
	chapters := make([]string, len(got))
	for i, s := range got {
		chapters[i] = s.Chapter
	}
	assert.Contains(t, chapters, "ch1", "high relevance outweighs low recency")
	assert.Equal(t, "ch1", chapters[0], "chronological order preserved")
}

func TestFormatContext(t *testing.T) {
	bundle := &types.ContextBundle{
		Characters: []types.CharacterCard{
			{Name: "林远", Identity: "剑客", Personality: []string{"沉默"}},
		},
		World: []types.WorldCard{
			{Name: "北港", Category: "location", Description: "临海商港", Rules: []string{"黄昏闭门"}},
		},
		Style: &types.StyleCard{Pacing: "slow"},
		Rules: &types.RulesCard{Donts: []string{"不用感叹号"}},
		Facts: []types.Fact{
			{Statement: "林远有银剑", Source: "ch1", Importance: types.ImportanceCritical},
		},
		Summaries: []types.ChapterSummary{
			{Chapter: "ch1", Summary: "抵达北港", KeyEvents: []string{"入住客栈"}},
		},
	}

	out := FormatContext(bundle)
	assert.Contains(t, out, "=== 写作风格 ===")
	assert.Contains(t, out, "=== 写作规则 ===")
	assert.Contains(t, out, "=== 角色 ===")
	assert.Contains(t, out, "=== 世界设定 ===")
	assert.Contains(t, out, "=== 已确立的事实 ===")
	assert.Contains(t, out, "=== 前文摘要 ===")
	assert.Contains(t, out, "林远：剑客")
	assert.Contains(t, out, "不要：不用感叹号")
	assert.Contains(t, out, "（出自ch1）")
}

func TestFormatContext_EmptyBundle(t *testing.T) {
	assert.Empty(t, FormatContext(&types.ContextBundle{}))
	assert.Empty(t, FormatContext(nil))
}

func characterNames(cards []types.CharacterCard) []string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.Name
	}
	return names
}
