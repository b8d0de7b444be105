package ontology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

func TestParseRelationType(t *testing.T) {
	tests := []struct {
		in   string
		want RelationType
	}{
		{"friend", RelationFriend},
		{"LOVER", RelationLover},
		{"family", RelationParent},
		{"nemesis", RelationOther},
		{"", RelationOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRelationType(tt.in), tt.in)
	}
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusDead, ParseStatus("dead"))
	assert.Equal(t, StatusAlive, ParseStatus(""))
	assert.Equal(t, StatusAlive, ParseStatus("vaporized"))
}

func TestParseImportance(t *testing.T) {
	assert.Equal(t, types.ImportanceCritical, ParseImportance("critical"))
	assert.Equal(t, types.ImportanceMinor, ParseImportance("minor"))
	assert.Equal(t, types.ImportanceNormal, ParseImportance("somewhat"))
}

func TestCharacterGraph_AliasesResolveToSameNode(t *testing.T) {
	g := &CharacterGraph{}
	g.AddCharacter(&CharacterNode{Name: "林远", Aliases: []string{"阿远"}})

	byAlias, ok := g.Node("阿远")
	require.True(t, ok)
	byName, _ := g.Node("林远")
	assert.Same(t, byName, byAlias)
}

func TestCharacterGraph_BidirectionalAddsReverse(t *testing.T) {
	g := &CharacterGraph{}
	g.AddRelationship(Relationship{
		Source: "林远", Target: "沈青", Type: RelationFriend, Bidirectional: true,
	})

	require.Len(t, g.Relationships, 2)
	assert.Equal(t, "沈青", g.Relationships[1].Source)
	assert.Equal(t, "林远", g.Relationships[1].Target)

	between := g.RelationshipsBetween("沈青", "林远")
	assert.Len(t, between, 2)
}

func TestCharacterGraph_Path(t *testing.T) {
	g := &CharacterGraph{}
	for _, name := range []string{"a", "b", "c", "d", "lone"} {
		g.AddCharacter(&CharacterNode{Name: name})
	}
	g.AddRelationship(Relationship{Source: "a", Target: "b", Type: RelationFriend})
	g.AddRelationship(Relationship{Source: "c", Target: "b", Type: RelationRival})
	g.AddRelationship(Relationship{Source: "c", Target: "d", Type: RelationAlly})

	assert.Equal(t, []string{"a", "b", "c", "d"}, g.Path("a", "d", 3))
	assert.Nil(t, g.Path("a", "lone", 3), "unconnected characters have no chain")
	assert.Nil(t, g.Path("a", "d", 2), "chain longer than maxDepth")
}

func TestWorld_ImmutableRules(t *testing.T) {
	w := &World{}
	w.AddRule(WorldRule{Rule: "灵力不可凭空产生", Immutable: true})
	w.AddRule(WorldRule{Rule: "北港冬季多雾", Immutable: false})

	rules := w.ImmutableRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "灵力不可凭空产生", rules[0].Rule)
}

func TestTimeline_AddAdvancesCurrentTime(t *testing.T) {
	tl := &Timeline{}
	tl.Add(Event{Event: "开端", Time: "第一日"})
	tl.Add(Event{Event: "无时间标注"})
	assert.Equal(t, "第一日", tl.CurrentTime)

	tl.Add(Event{Event: "转折", Time: "第三日"})
	assert.Equal(t, "第三日", tl.CurrentTime)
}

func TestTimeline_Queries(t *testing.T) {
	tl := &Timeline{}
	tl.Add(Event{Event: "e1", Source: "ch1", Participants: []string{"林远"}})
	tl.Add(Event{Event: "e2", Source: "ch2", Importance: types.ImportanceCritical})
	tl.Add(Event{Event: "e3", Source: "ch2", Participants: []string{"沈青"}})

	assert.Len(t, tl.ByChapter("ch2"), 2)
	assert.Len(t, tl.ForCharacter("林远"), 1)
	assert.Len(t, tl.Critical(), 1)
	assert.Len(t, tl.Recent(2), 2)
	assert.Equal(t, "e2", tl.Recent(2)[0].Event)
}

func TestRebuildFrom(t *testing.T) {
	o := New("novel")
	o.Characters.AddCharacter(&CharacterNode{Name: "林远", Location: "北港", Chapter: "ch2"})
	o.Characters.AddCharacter(&CharacterNode{Name: "沈青", Location: "南市", Chapter: "ch1"})
	o.Characters.AddRelationship(Relationship{Source: "林远", Target: "沈青", Type: RelationFriend, EstablishedAt: "ch1"})
	o.Characters.AddRelationship(Relationship{Source: "林远", Target: "周岚", Type: RelationEnemy, EstablishedAt: "ch2"})
	o.Timeline.Add(Event{Event: "e1", Source: "ch1"})
	o.Timeline.Add(Event{Event: "e2", Source: "ch2"})
	o.Timeline.Add(Event{Event: "e3", Source: "ch3"})
	o.LastChapter = "ch3"

	eventsRemoved, relsRemoved := o.RebuildFrom("ch2")

	assert.Equal(t, 2, eventsRemoved)
	assert.Equal(t, 1, relsRemoved)
	require.Len(t, o.Timeline.Events, 1)
	assert.Equal(t, "e1", o.Timeline.Events[0].Event)
	require.Len(t, o.Characters.Relationships, 1)
	assert.Equal(t, "沈青", o.Characters.Relationships[0].Target)

	// ch2 state wiped, ch1 state kept.
	lin, _ := o.Characters.Node("林远")
	assert.Empty(t, lin.Location)
	shen, _ := o.Characters.Node("沈青")
	assert.Equal(t, "南市", shen.Location)
	assert.Empty(t, o.LastChapter)
}

func TestGraphCompactText_FiltersToParticipants(t *testing.T) {
	g := &CharacterGraph{}
	g.AddCharacter(&CharacterNode{Name: "林远", Location: "北港"})
	g.AddCharacter(&CharacterNode{Name: "沈青", Status: StatusMissing})
	g.AddCharacter(&CharacterNode{Name: "路人甲"})
	g.AddRelationship(Relationship{Source: "林远", Target: "沈青", Type: RelationFriend, Bidirectional: true})

	text := g.CompactText([]string{"林远"})

	assert.Contains(t, text, "林远 @北港")
	assert.Contains(t, text, "沈青（missing）", "direct relations are pulled in")
	assert.NotContains(t, text, "路人甲")
	assert.Equal(t, 1, strings.Count(text, "→"), "bidirectional edge renders once")
}

func TestWorldCompactText(t *testing.T) {
	w := &World{
		Setting:    "灵力衰退的近代港城",
		TimePeriod: "新历四十年",
		Factions: map[string]Faction{
			"盐帮": {Name: "盐帮", Leader: "周岚"},
		},
	}
	w.AddRule(WorldRule{Rule: "死者不可复生", Immutable: true})
	w.AddRule(WorldRule{Rule: "港口宵禁", Immutable: false})

	text := w.CompactText()
	assert.Contains(t, text, "[世界背景] 灵力衰退的近代港城")
	assert.Contains(t, text, "- 死者不可复生")
	assert.NotContains(t, text, "港口宵禁", "mutable rules stay out of the compact view")
	assert.Contains(t, text, "盐帮（领袖：周岚）")
}

func TestTimelineCompactText_CriticalSurvivesRecencyCut(t *testing.T) {
	tl := &Timeline{}
	tl.Add(Event{Event: "远古之约", Importance: types.ImportanceCritical})
	for i := 0; i < 20; i++ {
		tl.Add(Event{Event: "日常事件", ID: string(rune('a' + i))})
	}

	text := tl.CompactText(nil, 5)
	assert.Contains(t, text, "远古之约")
}

func TestWritingContext_ComposesSections(t *testing.T) {
	o := New("novel")
	o.World.Setting = "港城"
	o.Characters.AddCharacter(&CharacterNode{Name: "林远"})
	o.Timeline.Add(Event{Event: "抵港", Time: "第一日"})

	text := o.WritingContext(nil)
	assert.Contains(t, text, "[世界背景] 港城")
	assert.Contains(t, text, "[角色状态]")
	assert.Contains(t, text, "[时间线]")
	assert.Contains(t, text, "[当前时间] 第一日")
}
