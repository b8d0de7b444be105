package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Record parsing for structured agent output. Agents are instructed to
// emit one record per line using a pipe-separated grammar:
//
//	FACT|statement|confidence|characters|importance
//	EVENT|time|event|participants|location
//	STATE|character|location|emotion|goals|inventory|injuries|relationships
//
// List fields use ";" between items; relationship items use "name:desc".
// Lines that do not meet a tag's minimum field count are skipped rather
// than failing the whole batch.

// Minimum payload fields (after the tag) required per record type.
const (
	minFactFields  = 2
	minEventFields = 3
	minStateFields = 2
)

var toConfirmRe = regexp.MustCompile(`\[TO_CONFIRM:\s*([^\]]+)\]`)

// ExtractTag returns the content of the first <tag>...</tag> block in
// text. When the tag is absent the trimmed raw text is returned, so
// models that ignore the tagging instruction still produce usable
// output.
func ExtractTag(text, tag string) string {
	re := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ExtractToConfirm collects the [TO_CONFIRM: ...] markers a draft uses
// to flag details the writer invented and wants verified.
func ExtractToConfirm(text string) []string {
	var items []string
	for _, m := range toConfirmRe.FindAllStringSubmatch(text, -1) {
		items = append(items, strings.TrimSpace(m[1]))
	}
	return items
}

// ParseFacts extracts FACT records from text. Source is stamped onto
// every fact; IDs are left for the store to assign. Confidence is
// clamped to [0,1] and defaults to 0.8; unknown importance values fall
// back to normal.
func ParseFacts(text, source string) []types.Fact {
	var facts []types.Fact
	for _, fields := range records(text, "FACT", minFactFields) {
		f := types.Fact{
			Statement:  fields[0],
			Source:     source,
			Confidence: clamp01(parseFloat(fields[1], 0.8)),
			Importance: types.ImportanceNormal,
		}
		if len(fields) > 2 {
			f.Characters = splitList(fields[2])
		}
		if len(fields) > 3 {
			if imp := types.Importance(strings.ToLower(fields[3])); imp.Valid() {
				f.Importance = imp
			}
		}
		facts = append(facts, f)
	}
	return facts
}

// ParseTimeline extracts EVENT records from text.
func ParseTimeline(text, source string) []types.TimelineEvent {
	var events []types.TimelineEvent
	for _, fields := range records(text, "EVENT", minEventFields) {
		e := types.TimelineEvent{
			Time:         fields[0],
			Event:        fields[1],
			Participants: splitList(fields[2]),
			Source:       source,
		}
		if len(fields) > 3 {
			e.Location = fields[3]
		}
		events = append(events, e)
	}
	return events
}

// ParseStates extracts STATE records from text. Chapter is stamped onto
// every snapshot.
func ParseStates(text, chapter string) []types.CharacterState {
	var states []types.CharacterState
	for _, fields := range records(text, "STATE", minStateFields) {
		s := types.CharacterState{
			Character: fields[0],
			Location:  fields[1],
			Chapter:   chapter,
		}
		if len(fields) > 2 {
			s.EmotionalState = fields[2]
		}
		if len(fields) > 3 {
			s.Goals = splitList(fields[3])
		}
		if len(fields) > 4 {
			s.Inventory = splitList(fields[4])
		}
		if len(fields) > 5 {
			s.Injuries = splitList(fields[5])
		}
		if len(fields) > 6 {
			s.Relationships = splitRelations(fields[6])
		}
		states = append(states, s)
	}
	return states
}

// records scans text line by line for "TAG|..." records and returns the
// trimmed payload fields of each line meeting the minimum count.
func records(text, tag string, minFields int) [][]string {
	var out [][]string
	prefix := tag + "|"
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		parts := strings.Split(line[len(prefix):], "|")
		fields := make([]string, 0, len(parts))
		for _, p := range parts {
			fields = append(fields, strings.TrimSpace(p))
		}
		if len(fields) < minFields || fields[0] == "" {
			continue
		}
		out = append(out, fields)
	}
	return out
}

// splitList splits a ";"- or "、"-separated field into trimmed items.
func splitList(field string) []string {
	field = strings.ReplaceAll(field, "、", ";")
	field = strings.ReplaceAll(field, ",", ";")
	var items []string
	for _, item := range strings.Split(field, ";") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// splitRelations parses "name:desc;name:desc" into a map. Items without
// a colon are kept with an empty description.
func splitRelations(field string) map[string]string {
	items := splitList(field)
	if len(items) == 0 {
		return nil
	}
	rels := make(map[string]string, len(items))
	for _, item := range items {
		name, desc, _ := strings.Cut(item, ":")
		rels[strings.TrimSpace(name)] = strings.TrimSpace(desc)
	}
	return rels
}

func parseFloat(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallback
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
