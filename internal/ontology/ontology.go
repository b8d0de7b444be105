// Package ontology holds the structured story ontology: the character
// relationship graph, world rules, locations, factions, and a typed
// timeline. It is distilled chapter by chapter and rendered as compact
// context for writing and review.
package ontology

import (
	"sort"
	"strings"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// RelationType classifies a relationship between two characters.
type RelationType string

// Relation types. Family, social, romantic, and the catch-all.
const (
	RelationParent       RelationType = "parent"
	RelationChild        RelationType = "child"
	RelationSibling      RelationType = "sibling"
	RelationSpouse       RelationType = "spouse"
	RelationFriend       RelationType = "friend"
	RelationEnemy        RelationType = "enemy"
	RelationRival        RelationType = "rival"
	RelationAlly         RelationType = "ally"
	RelationMentor       RelationType = "mentor"
	RelationStudent      RelationType = "student"
	RelationColleague    RelationType = "colleague"
	RelationSubordinate  RelationType = "subordinate"
	RelationSuperior     RelationType = "superior"
	RelationLover        RelationType = "lover"
	RelationExLover      RelationType = "ex_lover"
	RelationCrush        RelationType = "crush"
	RelationAdmirer      RelationType = "admirer"
	RelationAcquaintance RelationType = "acquaintance"
	RelationStranger     RelationType = "stranger"
	RelationOther        RelationType = "other"
)

var knownRelations = map[RelationType]bool{
	RelationParent: true, RelationChild: true, RelationSibling: true,
	RelationSpouse: true, RelationFriend: true, RelationEnemy: true,
	RelationRival: true, RelationAlly: true, RelationMentor: true,
	RelationStudent: true, RelationColleague: true, RelationSubordinate: true,
	RelationSuperior: true, RelationLover: true, RelationExLover: true,
	RelationCrush: true, RelationAdmirer: true, RelationAcquaintance: true,
	RelationStranger: true, RelationOther: true,
}

// ParseRelationType maps free-form model output to a relation type.
// Unknown values fall back to RelationOther; "family" collapses to
// parent for lack of a finer signal.
func ParseRelationType(s string) RelationType {
	t := RelationType(strings.ToLower(strings.TrimSpace(s)))
	if t == "family" {
		return RelationParent
	}
	if knownRelations[t] {
		return t
	}
	return RelationOther
}

// CharacterStatus is a character's life state.
type CharacterStatus string

// Character statuses.
const (
	StatusAlive   CharacterStatus = "alive"
	StatusDead    CharacterStatus = "dead"
	StatusMissing CharacterStatus = "missing"
	StatusUnknown CharacterStatus = "unknown"
)

// ParseStatus maps model output to a character status, defaulting to
// alive.
func ParseStatus(s string) CharacterStatus {
	switch CharacterStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusDead:
		return StatusDead
	case StatusMissing:
		return StatusMissing
	case StatusUnknown:
		return StatusUnknown
	default:
		return StatusAlive
	}
}

// EventType classifies a timeline event.
type EventType string

// Event types.
const (
	EventPlot         EventType = "plot"
	EventCharacter    EventType = "character"
	EventWorld        EventType = "world"
	EventRelationship EventType = "relationship"
)

// ParseImportance maps model output to an importance level, defaulting
// to normal.
func ParseImportance(s string) types.Importance {
	switch types.Importance(strings.ToLower(strings.TrimSpace(s))) {
	case types.ImportanceCritical:
		return types.ImportanceCritical
	case types.ImportanceMinor:
		return types.ImportanceMinor
	default:
		return types.ImportanceNormal
	}
}

// ParseEventType maps model output to an event type, defaulting to plot.
func ParseEventType(s string) EventType {
	switch EventType(strings.ToLower(strings.TrimSpace(s))) {
	case EventCharacter:
		return EventCharacter
	case EventWorld:
		return EventWorld
	case EventRelationship:
		return EventRelationship
	default:
		return EventPlot
	}
}

// Relationship is one directed edge of the character graph.
type Relationship struct {
	Source        string       `yaml:"source"`
	Target        string       `yaml:"target"`
	Type          RelationType `yaml:"type"`
	Description   string       `yaml:"description,omitempty"`
	Bidirectional bool         `yaml:"bidirectional,omitempty"`
	EstablishedAt string       `yaml:"established_at,omitempty"` // chapter
	EndedAt       string       `yaml:"ended_at,omitempty"`
}

// Text renders the relationship for LLM context.
func (r Relationship) Text() string {
	if r.Description != "" {
		return r.Source + " → " + r.Target + ": " + r.Description
	}
	return r.Source + " → " + r.Target + ": " + string(r.Type)
}

// CharacterNode is a lightweight character entry in the graph.
type CharacterNode struct {
	Name     string          `yaml:"name"`
	Status   CharacterStatus `yaml:"status"`
	Location string          `yaml:"location,omitempty"`
	Goal     string          `yaml:"goal,omitempty"`
	Aliases  []string        `yaml:"aliases,omitempty"`
	Groups   []string        `yaml:"groups,omitempty"`
	Chapter  string          `yaml:"chapter,omitempty"` // last updated in
}

// CharacterGraph is the character relationship graph. Aliases index the
// same node under additional names.
type CharacterGraph struct {
	Nodes         map[string]*CharacterNode `yaml:"nodes"`
	Relationships []Relationship            `yaml:"relationships"`
}

// Node resolves a character by name or alias.
func (g *CharacterGraph) Node(name string) (*CharacterNode, bool) {
	n, ok := g.Nodes[name]
	return n, ok
}

// AddCharacter inserts or replaces a node, indexing its aliases.
func (g *CharacterGraph) AddCharacter(node *CharacterNode) {
	if g.Nodes == nil {
		g.Nodes = make(map[string]*CharacterNode)
	}
	g.Nodes[node.Name] = node
	for _, alias := range node.Aliases {
		if _, taken := g.Nodes[alias]; !taken {
			g.Nodes[alias] = node
		}
	}
}

// AddRelationship appends an edge; a bidirectional relationship also
// records the reverse edge.
func (g *CharacterGraph) AddRelationship(rel Relationship) {
	g.Relationships = append(g.Relationships, rel)
	if rel.Bidirectional {
		reverse := rel
		reverse.Source, reverse.Target = rel.Target, rel.Source
		g.Relationships = append(g.Relationships, reverse)
	}
}

// RelationshipsFor returns every edge touching the character.
func (g *CharacterGraph) RelationshipsFor(character string) []Relationship {
	var out []Relationship
	for _, r := range g.Relationships {
		if r.Source == character || r.Target == character {
			out = append(out, r)
		}
	}
	return out
}

// RelationshipsBetween returns the edges connecting two characters in
// either direction.
func (g *CharacterGraph) RelationshipsBetween(a, b string) []Relationship {
	var out []Relationship
	for _, r := range g.Relationships {
		if (r.Source == a && r.Target == b) || (r.Source == b && r.Target == a) {
			out = append(out, r)
		}
	}
	return out
}

// ByGroup returns the names of all characters belonging to a group,
// sorted.
func (g *CharacterGraph) ByGroup(group string) []string {
	var out []string
	for name, node := range g.Nodes {
		for _, gr := range node.Groups {
			if gr == group {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Path finds a relationship chain between two characters by BFS,
// treating edges as undirected. Returns nil when no chain exists within
// maxDepth hops.
func (g *CharacterGraph) Path(source, target string, maxDepth int) []string {
	if _, ok := g.Nodes[source]; !ok {
		return nil
	}
	if _, ok := g.Nodes[target]; !ok {
		return nil
	}

	visited := map[string]bool{source: true}
	queue := [][]string{{source}}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if len(path) > maxDepth {
			continue
		}
		current := path[len(path)-1]
		for _, rel := range g.Relationships {
			var next string
			switch {
			case rel.Source == current && !visited[rel.Target]:
				next = rel.Target
			case rel.Target == current && !visited[rel.Source]:
				next = rel.Source
			default:
				continue
			}
			withNext := append(append([]string(nil), path...), next)
			if next == target {
				return withNext
			}
			visited[next] = true
			queue = append(queue, withNext)
		}
	}
	return nil
}

// WorldRule is one rule of the story world.
type WorldRule struct {
	ID        string `yaml:"id,omitempty"`
	Rule      string `yaml:"rule"`
	Category  string `yaml:"category,omitempty"` // magic/technology/social/physical/general
	Immutable bool   `yaml:"immutable"`
	Source    string `yaml:"source,omitempty"` // chapter
}

// Location is a place in the story world.
type Location struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Parent      string            `yaml:"parent,omitempty"`
	Attributes  map[string]string `yaml:"attributes,omitempty"`
}

// Faction is an organization or power bloc.
type Faction struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Leader      string   `yaml:"leader,omitempty"`
	Members     []string `yaml:"members,omitempty"`
	Allies      []string `yaml:"allies,omitempty"`
	Enemies     []string `yaml:"enemies,omitempty"`
	Goals       []string `yaml:"goals,omitempty"`
}

// World aggregates the world ontology: setting, rules, locations,
// factions.
type World struct {
	Setting    string              `yaml:"setting,omitempty"`
	TimePeriod string              `yaml:"time_period,omitempty"`
	Rules      []WorldRule         `yaml:"rules,omitempty"`
	Locations  map[string]Location `yaml:"locations,omitempty"`
	Factions   map[string]Faction  `yaml:"factions,omitempty"`
	Special    map[string]string   `yaml:"special,omitempty"` // magic system, tech level, ...
}

// AddRule appends a world rule.
func (w *World) AddRule(rule WorldRule) {
	w.Rules = append(w.Rules, rule)
}

// ImmutableRules returns the rules that must never be violated.
func (w *World) ImmutableRules() []WorldRule {
	var out []WorldRule
	for _, r := range w.Rules {
		if r.Immutable {
			out = append(out, r)
		}
	}
	return out
}

// Event is one entry of the story timeline.
type Event struct {
	ID           string           `yaml:"id,omitempty"`
	Time         string           `yaml:"time,omitempty"` // in-story time
	Event        string           `yaml:"event"`
	Type         EventType        `yaml:"type"`
	Participants []string         `yaml:"participants,omitempty"`
	Location     string           `yaml:"location,omitempty"`
	Source       string           `yaml:"source,omitempty"` // chapter
	Importance   types.Importance `yaml:"importance"`
	Consequences []string         `yaml:"consequences,omitempty"`
}

// Text renders the event for LLM context.
func (e Event) Text() string {
	var sb strings.Builder
	if e.Time != "" {
		sb.WriteString("[" + e.Time + "] ")
	}
	sb.WriteString(e.Event)
	if len(e.Participants) > 0 {
		sb.WriteString("（" + strings.Join(e.Participants, "、") + "）")
	}
	return sb.String()
}

// Timeline is the ordered story timeline.
type Timeline struct {
	Events      []Event `yaml:"events,omitempty"`
	CurrentTime string  `yaml:"current_time,omitempty"`
}

// Add appends an event. A non-empty event time advances the current
// story time.
func (t *Timeline) Add(e Event) {
	t.Events = append(t.Events, e)
	if e.Time != "" {
		t.CurrentTime = e.Time
	}
}

// ByChapter returns the events extracted from one chapter.
func (t *Timeline) ByChapter(chapter string) []Event {
	var out []Event
	for _, e := range t.Events {
		if e.Source == chapter {
			out = append(out, e)
		}
	}
	return out
}

// ForCharacter returns the events a character participates in.
func (t *Timeline) ForCharacter(character string) []Event {
	var out []Event
	for _, e := range t.Events {
		for _, p := range e.Participants {
			if p == character {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Recent returns the last n events.
func (t *Timeline) Recent(n int) []Event {
	if len(t.Events) <= n {
		return t.Events
	}
	return t.Events[len(t.Events)-n:]
}

// Critical returns the critical events.
func (t *Timeline) Critical() []Event {
	var out []Event
	for _, e := range t.Events {
		if e.Importance == types.ImportanceCritical {
			out = append(out, e)
		}
	}
	return out
}

// StoryOntology aggregates the structured knowledge of one project.
type StoryOntology struct {
	Project     string         `yaml:"project"`
	World       World          `yaml:"world"`
	Characters  CharacterGraph `yaml:"characters"`
	Timeline    Timeline       `yaml:"timeline"`
	LastChapter string         `yaml:"last_chapter,omitempty"`
	Version     int            `yaml:"version"`
}

// New creates an empty ontology for a project.
func New(project string) *StoryOntology {
	return &StoryOntology{
		Project: project,
		Version: 1,
		Characters: CharacterGraph{
			Nodes: make(map[string]*CharacterNode),
		},
	}
}

// RebuildFrom drops everything the given chapter and later chapters
// contributed: their timeline events and relationships, and the
// per-chapter state of characters last touched there. Used before
// re-extracting from a rewritten chapter onward. Returns the numbers of
// events and relationships removed.
func (o *StoryOntology) RebuildFrom(chapter string) (eventsRemoved, relsRemoved int) {
	kept := o.Timeline.Events[:0]
	for _, e := range o.Timeline.Events {
		if e.Source != "" && e.Source < chapter {
			kept = append(kept, e)
		} else {
			eventsRemoved++
		}
	}
	o.Timeline.Events = kept

	keptRels := o.Characters.Relationships[:0]
	for _, r := range o.Characters.Relationships {
		if r.EstablishedAt != "" && r.EstablishedAt < chapter {
			keptRels = append(keptRels, r)
		} else {
			relsRemoved++
		}
	}
	o.Characters.Relationships = keptRels

	for _, node := range o.Characters.Nodes {
		if node.Chapter != "" && node.Chapter >= chapter {
			node.Chapter = ""
			node.Location = ""
			node.Goal = ""
		}
	}

	o.LastChapter = ""
	return eventsRemoved, relsRemoved
}
