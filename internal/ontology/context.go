package ontology

import (
	"sort"
	"strings"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Compact rendering caps.
const (
	maxCompactRules    = 10
	maxReviewRules     = 20
	maxCompactFactions = 5
	writingTimelineCap = 15
	reviewTimelineCap  = 25
)

// CompactText renders the graph for LLM context. With participants
// given, only they and their direct relations are included; otherwise
// every character is.
func (g *CharacterGraph) CompactText(participants []string) string {
	relevant := make(map[string]bool)
	if len(participants) > 0 {
		for _, p := range participants {
			relevant[p] = true
		}
		for _, rel := range g.Relationships {
			if relevant[rel.Source] {
				relevant[rel.Target] = true
			}
			if relevant[rel.Target] {
				relevant[rel.Source] = true
			}
		}
	} else {
		for name := range g.Nodes {
			relevant[name] = true
		}
	}

	names := make([]string, 0, len(relevant))
	for name := range relevant {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	lines = append(lines, "[角色状态]")
	for _, name := range names {
		node, ok := g.Nodes[name]
		if !ok || node.Name != name {
			continue // alias entries render under their primary name
		}
		line := name
		if node.Status != "" && node.Status != StatusAlive {
			line += "（" + string(node.Status) + "）"
		}
		if node.Location != "" {
			line += " @" + node.Location
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", "[角色关系]")
	seen := make(map[string]bool)
	for _, rel := range g.Relationships {
		if !relevant[rel.Source] && !relevant[rel.Target] {
			continue
		}
		// A bidirectional pair renders once.
		a, b := rel.Source, rel.Target
		if a > b {
			a, b = b, a
		}
		key := a + "|" + b + "|" + string(rel.Type)
		if seen[key] {
			continue
		}
		seen[key] = true
		lines = append(lines, rel.Text())
	}

	return strings.Join(lines, "\n")
}

// CompactText renders the world for LLM context: setting, era, the
// immutable rules, and the major factions.
func (w *World) CompactText() string {
	var lines []string

	if w.Setting != "" {
		lines = append(lines, "[世界背景] "+w.Setting)
	}
	if w.TimePeriod != "" {
		lines = append(lines, "[时代] "+w.TimePeriod)
	}

	if immutable := w.ImmutableRules(); len(immutable) > 0 {
		lines = append(lines, "", "[核心规则]")
		for i, rule := range immutable {
			if i >= maxCompactRules {
				break
			}
			lines = append(lines, "- "+rule.Rule)
		}
	}

	if len(w.Factions) > 0 {
		lines = append(lines, "", "[主要势力]")
		names := make([]string, 0, len(w.Factions))
		for name := range w.Factions {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i >= maxCompactFactions {
				break
			}
			line := name
			if leader := w.Factions[name].Leader; leader != "" {
				line += "（领袖：" + leader + "）"
			}
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

// CompactText renders the timeline for LLM context: the critical events
// plus the most recent ones touching the participants, capped at limit.
func (t *Timeline) CompactText(participants []string, limit int) string {
	relevant := t.Events
	if len(participants) > 0 {
		relevant = nil
		for _, e := range t.Events {
			if e.Importance == types.ImportanceCritical || touches(e, participants) {
				relevant = append(relevant, e)
			}
		}
	}

	// Critical events survive the recency cut.
	selected := make([]Event, 0, limit)
	seen := make(map[string]bool)
	add := func(e Event) {
		key := e.ID
		if key == "" {
			key = e.Event
		}
		if !seen[key] {
			seen[key] = true
			selected = append(selected, e)
		}
	}
	for _, e := range relevant {
		if e.Importance == types.ImportanceCritical {
			add(e)
		}
	}
	start := 0
	if len(relevant) > limit {
		start = len(relevant) - limit
	}
	for _, e := range relevant[start:] {
		add(e)
	}
	if len(selected) > limit {
		selected = selected[len(selected)-limit:]
	}

	lines := []string{"[时间线]"}
	for _, e := range selected {
		lines = append(lines, e.Text())
	}
	if t.CurrentTime != "" {
		lines = append(lines, "", "[当前时间] "+t.CurrentTime)
	}
	return strings.Join(lines, "\n")
}

func touches(e Event, characters []string) bool {
	for _, p := range e.Participants {
		for _, c := range characters {
			if p == c {
				return true
			}
		}
	}
	return false
}

// WritingContext renders the compact context used while drafting:
// world, character graph, recent timeline.
func (o *StoryOntology) WritingContext(participants []string) string {
	parts := []string{
		o.World.CompactText(),
		o.Characters.CompactText(participants),
		o.Timeline.CompactText(participants, writingTimelineCap),
	}
	return strings.Join(parts, "\n\n")
}

// ReviewContext renders a fuller context for reviewing: all rule
// categories and a longer timeline.
func (o *StoryOntology) ReviewContext(participants []string) string {
	var lines []string
	lines = append(lines, "[世界观]")
	if o.World.Setting != "" {
		lines = append(lines, "背景: "+o.World.Setting)
	}
	for i, rule := range o.World.Rules {
		if i >= maxReviewRules {
			break
		}
		prefix := ""
		if rule.Immutable {
			prefix = "[不可违反]"
		}
		lines = append(lines, "- "+prefix+rule.Rule)
	}

	lines = append(lines, "", o.Characters.CompactText(participants))
	lines = append(lines, "", o.Timeline.CompactText(participants, reviewTimelineCap))
	return strings.Join(lines, "\n")
}
