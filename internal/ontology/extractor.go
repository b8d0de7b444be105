package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/yewanyuan/Cursor-Writing/internal/llm"
)

// Extraction chunking. Long chapters are split into overlapping
// paragraph chunks so each extraction call stays well inside context.
const (
	chunkSize    = 4000
	chunkOverlap = 300

	extractorAgent = "archivist"
)

// Chatter issues LLM requests routed by agent role.
type Chatter interface {
	ChatForAgent(ctx context.Context, agent string, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Store persists the story ontology.
type Store interface {
	Get(project string) (*StoryOntology, error)
	Save(project string, o *StoryOntology) error
}

// Stats counts what one extraction pass contributed.
type Stats struct {
	CharactersAdded    int `json:"characters_added"`
	CharactersUpdated  int `json:"characters_updated"`
	RelationshipsAdded int `json:"relationships_added"`
	EventsAdded        int `json:"events_added"`
	RulesAdded         int `json:"rules_added"`
	LocationsAdded     int `json:"locations_added"`
	FactionsAdded      int `json:"factions_added"`
}

// Extractor distills chapter text into ontology updates.
type Extractor struct {
	chatter Chatter
	store   Store
	logger  *slog.Logger
}

// NewExtractor creates an extractor over the chatter and ontology store.
func NewExtractor(chatter Chatter, store Store) *Extractor {
	return &Extractor{
		chatter: chatter,
		store:   store,
		logger:  slog.Default().With("component", "ontology"),
	}
}

// ExtractAndUpdate extracts structured story information from a
// chapter's text and merges it into the project ontology. The text is
// processed in overlapping chunks; a chunk whose extraction fails is
// skipped so one bad response cannot void the pass. The ontology is
// saved once, after all chunks.
func (x *Extractor) ExtractAndUpdate(ctx context.Context, project, chapter, content string, participants []string) (*Stats, error) {
	o, err := x.store.Get(project)
	if err != nil {
		return nil, fmt.Errorf("failed to load ontology: %w", err)
	}

	chunks := splitParagraphs(content, chunkSize, chunkOverlap)
	stats := &Stats{}
	for i, chunk := range chunks {
		chunkInfo := ""
		if len(chunks) > 1 {
			chunkInfo = fmt.Sprintf("（第 %d/%d 部分）", i+1, len(chunks))
		}
		ext, err := x.extractChunk(ctx, chapter, chunk, chunkInfo, participants)
		if err != nil {
			x.logger.Warn("chunk extraction failed, skipping",
				"project", project, "chapter", chapter, "chunk", i+1, "error", err)
			continue
		}
		apply(o, chapter, ext, stats)
	}

	o.LastChapter = chapter
	if err := x.store.Save(project, o); err != nil {
		return nil, fmt.Errorf("failed to save ontology: %w", err)
	}

	x.logger.Info("ontology updated",
		"project", project, "chapter", chapter,
		"characters", stats.CharactersAdded+stats.CharactersUpdated,
		"relationships", stats.RelationshipsAdded,
		"events", stats.EventsAdded)
	return stats, nil
}

// extraction mirrors the JSON schema the model is asked to produce.
type extraction struct {
	Characters []struct {
		Name     string   `json:"name"`
		Status   string   `json:"status"`
		Location string   `json:"location"`
		Goal     string   `json:"goal"`
		Aliases  []string `json:"aliases"`
		Groups   []string `json:"groups"`
	} `json:"characters"`
	Relationships []struct {
		Source        string `json:"source"`
		Target        string `json:"target"`
		Type          string `json:"type"`
		Description   string `json:"description"`
		Bidirectional bool   `json:"bidirectional"`
	} `json:"relationships"`
	Events []struct {
		Time         string   `json:"time"`
		Event        string   `json:"event"`
		Type         string   `json:"type"`
		Participants []string `json:"participants"`
		Location     string   `json:"location"`
		Importance   string   `json:"importance"`
		Consequences []string `json:"consequences"`
	} `json:"events"`
	Rules []struct {
		Rule      string `json:"rule"`
		Category  string `json:"category"`
		Immutable bool   `json:"immutable"`
	} `json:"rules"`
	Locations []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Parent      string `json:"parent"`
	} `json:"locations"`
	Factions []struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Leader      string   `json:"leader"`
		Members     []string `json:"members"`
		Allies      []string `json:"allies"`
		Enemies     []string `json:"enemies"`
	} `json:"factions"`
}

func (x *Extractor) extractChunk(ctx context.Context, chapter, chunk, chunkInfo string, known []string) (*extraction, error) {
	knownHint := ""
	if len(known) > 0 {
		knownHint = "\n已知出场角色：" + strings.Join(known, "、")
	}

	prompt := fmt.Sprintf(extractionPromptFormat, chapter, chunkInfo, knownHint, chunk)
	resp, err := x.chatter.ChatForAgent(ctx, extractorAgent, llm.ChatRequest{
		Messages:    []llm.ChatMessage{llm.NewUserMessage(prompt)},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}

	var ext extraction
	if err := json.Unmarshal([]byte(extractJSON(resp.Message.Content)), &ext); err != nil {
		return nil, fmt.Errorf("failed to parse extraction: %w", err)
	}
	return &ext, nil
}

// apply merges one chunk's extraction into the ontology.
func apply(o *StoryOntology, chapter string, ext *extraction, stats *Stats) {
	for _, c := range ext.Characters {
		if c.Name == "" {
			continue
		}
		if node, ok := o.Characters.Node(c.Name); ok {
			node.Status = ParseStatus(c.Status)
			if c.Location != "" {
				node.Location = c.Location
			}
			if c.Goal != "" {
				node.Goal = c.Goal
			}
			node.Chapter = chapter
			stats.CharactersUpdated++
		} else {
			o.Characters.AddCharacter(&CharacterNode{
				Name:     c.Name,
				Status:   ParseStatus(c.Status),
				Location: c.Location,
				Goal:     c.Goal,
				Aliases:  c.Aliases,
				Groups:   c.Groups,
				Chapter:  chapter,
			})
			stats.CharactersAdded++
		}
	}

	for _, r := range ext.Relationships {
		if r.Source == "" || r.Target == "" {
			continue
		}
		o.Characters.AddRelationship(Relationship{
			Source:        r.Source,
			Target:        r.Target,
			Type:          ParseRelationType(r.Type),
			Description:   r.Description,
			Bidirectional: r.Bidirectional,
			EstablishedAt: chapter,
		})
		stats.RelationshipsAdded++
	}

	for _, e := range ext.Events {
		if e.Event == "" {
			continue
		}
		imp := ParseImportance(e.Importance)
		o.Timeline.Add(Event{
			ID:           uuid.NewString(),
			Time:         e.Time,
			Event:        e.Event,
			Type:         ParseEventType(e.Type),
			Participants: e.Participants,
			Location:     e.Location,
			Source:       chapter,
			Importance:   imp,
			Consequences: e.Consequences,
		})
		stats.EventsAdded++
	}

	for _, r := range ext.Rules {
		if r.Rule == "" {
			continue
		}
		o.World.AddRule(WorldRule{
			ID:        uuid.NewString(),
			Rule:      r.Rule,
			Category:  r.Category,
			Immutable: r.Immutable,
			Source:    chapter,
		})
		stats.RulesAdded++
	}

	for _, l := range ext.Locations {
		if l.Name == "" {
			continue
		}
		if o.World.Locations == nil {
			o.World.Locations = make(map[string]Location)
		}
		if _, ok := o.World.Locations[l.Name]; !ok {
			stats.LocationsAdded++
		}
		o.World.Locations[l.Name] = Location{
			Name:        l.Name,
			Description: l.Description,
			Parent:      l.Parent,
		}
	}

	for _, f := range ext.Factions {
		if f.Name == "" {
			continue
		}
		if o.World.Factions == nil {
			o.World.Factions = make(map[string]Faction)
		}
		if _, ok := o.World.Factions[f.Name]; !ok {
			stats.FactionsAdded++
		}
		o.World.Factions[f.Name] = Faction{
			Name:        f.Name,
			Description: f.Description,
			Leader:      f.Leader,
			Members:     f.Members,
			Allies:      f.Allies,
			Enemies:     f.Enemies,
		}
	}
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON pulls the JSON object out of a response that may wrap it
// in a markdown code fence or surrounding prose.
func extractJSON(content string) string {
	if m := codeFenceRe.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		content = content[start : end+1]
	}
	return strings.TrimSpace(content)
}

// splitParagraphs splits text on blank lines and packs the paragraphs
// into chunks of at most size runes, seeding each new chunk with the
// previous chunk's tail for continuity. A single oversized paragraph
// becomes its own chunk.
func splitParagraphs(text string, size, overlap int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, "\n\n"))
		// Carry tail paragraphs into the next chunk as overlap.
		var tail []string
		tailLen := 0
		for i := len(current) - 1; i >= 0 && tailLen < overlap; i-- {
			tail = append([]string{current[i]}, tail...)
			tailLen += len([]rune(current[i]))
		}
		current = tail
		currentLen = tailLen
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pLen := len([]rune(p))
		if currentLen > 0 && currentLen+pLen > size {
			flush()
		}
		current = append(current, p)
		currentLen += pLen
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}

const extractionPromptFormat = `从以下章节内容中提取结构化的故事本体信息：

章节：%s%s%s

%s

提取要求（只提取明确出现的，不要推测）：
1. 角色信息：新角色（含别名）、状态变化（位置、目标、生死）、所属组织
2. 角色关系：新建立的关系、关系变化（敌变友、分手、结盟等）
3. 重要事件：关键情节、角色状态变化、关系变化
4. 世界规则（如有新揭示）：能力体系、社会规则、物理规则
5. 地点（如有新出现）：名称、描述、上级地点
6. 势力/组织（如有新出现）：名称、描述、领导者、成员

输出 JSON，不要其他内容：
{
  "characters": [{"name": "角色名", "status": "alive/dead/missing/unknown", "location": "当前位置", "goal": "当前目标", "aliases": ["别名"], "groups": ["所属组织"]}],
  "relationships": [{"source": "角色A", "target": "角色B", "type": "friend/enemy/lover/parent/mentor/ally/rival/other", "description": "关系描述", "bidirectional": true}],
  "events": [{"time": "故事时间", "event": "事件描述", "type": "plot/character/world/relationship", "participants": ["参与者"], "location": "地点", "importance": "critical/normal/minor", "consequences": ["后果"]}],
  "rules": [{"rule": "规则描述", "category": "magic/technology/social/physical/general", "immutable": true}],
  "locations": [{"name": "地点名", "description": "描述", "parent": "上级地点"}],
  "factions": [{"name": "组织名", "description": "描述", "leader": "领导者", "members": ["成员"], "allies": ["盟友"], "enemies": ["敌对"]}]
}

没有相关信息的字段返回空数组。重要性分级：critical（核心转折）、normal（一般重要）、minor（细节）。`
