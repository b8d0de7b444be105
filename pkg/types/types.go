// Package types provides shared data models for Cursor-Writing.
package types

import (
	"time"
)

// Importance classifies how strongly a fact constrains later chapters.
type Importance string

// Importance levels, ordered from most to least binding.
const (
	ImportanceCritical Importance = "critical"
	ImportanceNormal   Importance = "normal"
	ImportanceMinor    Importance = "minor"
)

// Rank returns the sort rank of the importance level (critical first).
// Unknown values rank after minor so malformed records sink to the bottom.
func (i Importance) Rank() int {
	switch i {
	case ImportanceCritical:
		return 0
	case ImportanceNormal:
		return 1
	case ImportanceMinor:
		return 2
	default:
		return 3
	}
}

// Valid reports whether the importance is one of the defined levels.
func (i Importance) Valid() bool {
	return i == ImportanceCritical || i == ImportanceNormal || i == ImportanceMinor
}

// Relation describes a character's relationship to another character.
type Relation struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// CharacterCard holds the persistent description of a character.
type CharacterCard struct {
	Name          string     `yaml:"name" json:"name"`
	Identity      string     `yaml:"identity" json:"identity"`
	Appearance    string     `yaml:"appearance" json:"appearance"`
	Personality   []string   `yaml:"personality" json:"personality"`
	Motivation    string     `yaml:"motivation" json:"motivation"`
	SpeechPattern string     `yaml:"speech_pattern" json:"speech_pattern"`
	Relationships []Relation `yaml:"relationships" json:"relationships"`
	Boundaries    []string   `yaml:"boundaries" json:"boundaries"`
	Arc           string     `yaml:"arc" json:"arc"`
}

// WorldCard describes one element of the story world.
type WorldCard struct {
	Name        string   `yaml:"name" json:"name"`
	Category    string   `yaml:"category" json:"category"` // location/rule/magic/organization
	Description string   `yaml:"description" json:"description"`
	Rules       []string `yaml:"rules" json:"rules"`
	Immutable   bool     `yaml:"immutable" json:"immutable"`
}

// StyleCard captures the project's prose style constraints.
type StyleCard struct {
	NarrativeDistance string   `yaml:"narrative_distance" json:"narrative_distance"` // close/medium/far
	Pacing            string   `yaml:"pacing" json:"pacing"`                         // fast/moderate/slow
	SentenceStyle     string   `yaml:"sentence_style" json:"sentence_style"`
	Vocabulary        []string `yaml:"vocabulary" json:"vocabulary"`
	TabooWords        []string `yaml:"taboo_words" json:"taboo_words"`
	ExamplePassages   []string `yaml:"example_passages" json:"example_passages"`
}

// RulesCard lists hard writing rules for the project.
type RulesCard struct {
	Dos              []string `yaml:"dos" json:"dos"`
	Donts            []string `yaml:"donts" json:"donts"`
	QualityStandards []string `yaml:"quality_standards" json:"quality_standards"`
}

// Fact is one canon fact extracted from a finalized chapter.
type Fact struct {
	ID         string     `json:"id"`
	Statement  string     `json:"statement"`
	Source     string     `json:"source"` // chapter the fact was extracted from
	Confidence float64    `json:"confidence"`
	Characters []string   `json:"characters"`
	Importance Importance `json:"importance"`
}

// TimelineEvent is one canon timeline entry.
type TimelineEvent struct {
	ID           string   `json:"id"`
	Time         string   `json:"time"`
	Event        string   `json:"event"`
	Participants []string `json:"participants"`
	Location     string   `json:"location"`
	Source       string   `json:"source"`
}

// CharacterState is a snapshot of a character at the end of a chapter.
type CharacterState struct {
	Character      string            `json:"character"`
	Chapter        string            `json:"chapter"`
	Location       string            `json:"location"`
	EmotionalState string            `json:"emotional_state"`
	Goals          []string          `json:"goals"`
	Inventory      []string          `json:"inventory"`
	Injuries       []string          `json:"injuries"`
	Relationships  map[string]string `json:"relationships"`
}

// BriefCharacter is one character entry inside a scene brief.
type BriefCharacter struct {
	Name          string `yaml:"name" json:"name"`
	State         string `yaml:"state" json:"state"`
	RoleInChapter string `yaml:"role_in_chapter" json:"role_in_chapter"`
}

// SceneBrief is the per-chapter planning artifact produced by the archivist.
type SceneBrief struct {
	Chapter          string           `yaml:"chapter" json:"chapter"`
	Title            string           `yaml:"title" json:"title"`
	Goal             string           `yaml:"goal" json:"goal"`
	Characters       []BriefCharacter `yaml:"characters" json:"characters"`
	TimelineContext  string           `yaml:"timeline_context" json:"timeline_context"`
	WorldConstraints []string         `yaml:"world_constraints" json:"world_constraints"`
	StyleReminder    string           `yaml:"style_reminder" json:"style_reminder"`
	Forbidden        []string         `yaml:"forbidden" json:"forbidden"`
}

// Draft is one versioned chapter draft.
type Draft struct {
	Chapter              string    `json:"chapter"`
	Version              string    `json:"version"` // v1, v2, ...
	Content              string    `json:"content"`
	WordCount            int       `json:"word_count"`
	PendingConfirmations []string  `json:"pending_confirmations"` // [TO_CONFIRM] markers
	CreatedAt            time.Time `json:"created_at"`
	Notes                string    `json:"notes,omitempty"`
}

// ReviewIssue is a single problem flagged by the reviewer.
type ReviewIssue struct {
	Category   string `yaml:"category" json:"category"` // consistency/style/plot/character
	Problem    string `yaml:"problem" json:"problem"`
	Suggestion string `yaml:"suggestion" json:"suggestion"`
	Severity   string `yaml:"severity" json:"severity"` // minor/major/critical
}

// Review is the reviewer's verdict on one draft version.
type Review struct {
	Chapter      string        `yaml:"chapter" json:"chapter"`
	DraftVersion string        `yaml:"draft_version" json:"draft_version"`
	Issues       []ReviewIssue `yaml:"issues" json:"issues"`
	OverallScore float64       `yaml:"overall_score" json:"overall_score"` // 0-1
	Summary      string        `yaml:"summary" json:"summary"`
}

// ChapterSummary condenses a finished chapter for use as later context.
type ChapterSummary struct {
	Chapter          string            `yaml:"chapter" json:"chapter"`
	Title            string            `yaml:"title" json:"title"`
	Summary          string            `yaml:"summary" json:"summary"`
	KeyEvents        []string          `yaml:"key_events" json:"key_events"`
	CharacterChanges map[string]string `yaml:"character_changes" json:"character_changes"`
}

// ContextBundle is the structured snapshot assembled for one generation call.
// It is transient: rebuilt per call and never persisted.
type ContextBundle struct {
	Characters []CharacterCard
	World      []WorldCard
	Style      *StyleCard
	Rules      *RulesCard
	Facts      []Fact
	Summaries  []ChapterSummary
}

// BudgetConfig defines the total context size and the fraction assigned to
// each budget category. Fractions are design constants; they need not sum to
// exactly 1.0 but should not exceed it.
type BudgetConfig struct {
	TotalTokens   int     `yaml:"total_tokens"`
	SystemRules   float64 `yaml:"system_rules"`
	Cards         float64 `yaml:"cards"`
	Canon         float64 `yaml:"canon"`
	Summaries     float64 `yaml:"summaries"`
	CurrentDraft  float64 `yaml:"current_draft"`
	OutputReserve float64 `yaml:"output_reserve"`
}

// DefaultBudgetConfig returns the standard budget split.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		TotalTokens:   128000,
		SystemRules:   0.05,
		Cards:         0.15,
		Canon:         0.10,
		Summaries:     0.20,
		CurrentDraft:  0.30,
		OutputReserve: 0.20,
	}
}
