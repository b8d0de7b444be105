package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

func TestExtractTag(t *testing.T) {
	tests := []struct {
		name string
		text string
		tag  string
		want string
	}{
		{
			name: "tagged content",
			text: "preamble <draft>chapter text</draft> trailing",
			tag:  "draft",
			want: "chapter text",
		},
		{
			name: "multiline content",
			text: "<draft>line one\nline two</draft>",
			tag:  "draft",
			want: "line one\nline two",
		},
		{
			name: "missing tag falls back to raw",
			text: "  plain response  ",
			tag:  "draft",
			want: "plain response",
		},
		{
			name: "first block wins",
			text: "<s>one</s><s>two</s>",
			tag:  "s",
			want: "one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTag(tt.text, tt.tag))
		})
	}
}

func TestExtractToConfirm(t *testing.T) {
	text := "他拔出了[TO_CONFIRM: 主角的佩剑名称]。\n[TO_CONFIRM: 城门的方位 ]"

	got := ExtractToConfirm(text)
	require.Len(t, got, 2)
	assert.Equal(t, "主角的佩剑名称", got[0])
	assert.Equal(t, "城门的方位", got[1])

	assert.Empty(t, ExtractToConfirm("no markers here"))
}

func TestParseFacts(t *testing.T) {
	text := `分析结果如下：
FACT|主角获得了银剑|0.9|主角|critical
FACT|城门在黄昏关闭|0.6|
FACT|置信度越界|1.7|主角;守卫|unknown
FACT|缺少字段
EVENT|当晚|这一行不是事实|主角`

	facts := ParseFacts(text, "ch1")
	require.Len(t, facts, 3)

	assert.Equal(t, "主角获得了银剑", facts[0].Statement)
	assert.Equal(t, 0.9, facts[0].Confidence)
	assert.Equal(t, []string{"主角"}, facts[0].Characters)
	assert.Equal(t, types.ImportanceCritical, facts[0].Importance)
	assert.Equal(t, "ch1", facts[0].Source)

	assert.Equal(t, 0.6, facts[1].Confidence)
	assert.Empty(t, facts[1].Characters)
	assert.Equal(t, types.ImportanceNormal, facts[1].Importance)

	assert.Equal(t, 1.0, facts[2].Confidence, "confidence clamped to 1")
	assert.Equal(t, types.ImportanceNormal, facts[2].Importance, "unknown importance defaults to normal")
	assert.Equal(t, []string{"主角", "守卫"}, facts[2].Characters)
}

func TestParseFacts_BadConfidence(t *testing.T) {
	facts := ParseFacts("FACT|某事发生了|很高|主角", "ch2")
	require.Len(t, facts, 1)
	assert.Equal(t, 0.8, facts[0].Confidence, "unparseable confidence uses the default")
}

func TestParseTimeline(t *testing.T) {
	text := `EVENT|第三天清晨|商队抵达港口|主角;向导|北港
EVENT|当晚|守卫换岗|守卫
EVENT|缺字段|x`

	events := ParseTimeline(text, "ch3")
	require.Len(t, events, 2)

	assert.Equal(t, "第三天清晨", events[0].Time)
	assert.Equal(t, "商队抵达港口", events[0].Event)
	assert.Equal(t, []string{"主角", "向导"}, events[0].Participants)
	assert.Equal(t, "北港", events[0].Location)
	assert.Equal(t, "ch3", events[0].Source)

	assert.Empty(t, events[1].Location)
}

func TestParseStates(t *testing.T) {
	text := `STATE|主角|北港客栈|疲惫|找到向导;修好佩剑|银剑;地图|左臂擦伤|向导:信任加深
STATE|向导|北港码头`

	states := ParseStates(text, "ch3")
	require.Len(t, states, 2)

	s := states[0]
	assert.Equal(t, "主角", s.Character)
	assert.Equal(t, "北港客栈", s.Location)
	assert.Equal(t, "ch3", s.Chapter)
	assert.Equal(t, "疲惫", s.EmotionalState)
	assert.Equal(t, []string{"找到向导", "修好佩剑"}, s.Goals)
	assert.Equal(t, []string{"银剑", "地图"}, s.Inventory)
	assert.Equal(t, []string{"左臂擦伤"}, s.Injuries)
	assert.Equal(t, map[string]string{"向导": "信任加深"}, s.Relationships)

	assert.Equal(t, "向导", states[1].Character)
	assert.Nil(t, states[1].Relationships)
}

func TestParseStates_EmptyText(t *testing.T) {
	assert.Empty(t, ParseStates("no records at all", "ch1"))
}
