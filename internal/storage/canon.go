package storage

import (
	"path/filepath"

	"github.com/google/uuid"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Canon record files under <project>/canon/.
const (
	factsFile    = "facts.jsonl"
	timelineFile = "timeline.jsonl"
	statesFile   = "character_states.jsonl"
)

// CanonStore persists extracted facts, timeline events, and character
// states as append-only JSONL. Re-extracting a chapter goes through
// ReplaceChapter, which drops the chapter's old records first.
type CanonStore struct {
	base *Store
}

// NewCanonStore creates a canon store over base.
func NewCanonStore(base *Store) *CanonStore {
	return &CanonStore{base: base}
}

func (s *CanonStore) canonPath(project, file string) string {
	return filepath.Join(s.base.ProjectDir(project), "canon", file)
}

// AppendFacts appends facts, assigning IDs to records without one.
func (s *CanonStore) AppendFacts(project string, facts []types.Fact) error {
	for i := range facts {
		if facts[i].ID == "" {
			facts[i].ID = uuid.NewString()
		}
	}
	return appendJSONL(s.canonPath(project, factsFile), facts)
}

// ListFacts returns all facts of a project in append order.
func (s *CanonStore) ListFacts(project string) ([]types.Fact, error) {
	return readJSONL[types.Fact](s.canonPath(project, factsFile))
}

// AppendTimeline appends timeline events, assigning IDs as needed.
func (s *CanonStore) AppendTimeline(project string, events []types.TimelineEvent) error {
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
	}
	return appendJSONL(s.canonPath(project, timelineFile), events)
}

// ListTimeline returns all timeline events of a project in append order.
func (s *CanonStore) ListTimeline(project string) ([]types.TimelineEvent, error) {
	return readJSONL[types.TimelineEvent](s.canonPath(project, timelineFile))
}

// AppendStates appends character state snapshots.
func (s *CanonStore) AppendStates(project string, states []types.CharacterState) error {
	return appendJSONL(s.canonPath(project, statesFile), states)
}

// ListStates returns all character states of a project in append order.
func (s *CanonStore) ListStates(project string) ([]types.CharacterState, error) {
	return readJSONL[types.CharacterState](s.canonPath(project, statesFile))
}

// LatestStates returns the most recent snapshot per character, keyed by
// character name. Later records win.
func (s *CanonStore) LatestStates(project string) (map[string]types.CharacterState, error) {
	states, err := s.ListStates(project)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]types.CharacterState, len(states))
	for _, st := range states {
		latest[st.Character] = st
	}
	return latest, nil
}

// ReplaceChapter removes every canon record sourced from the chapter
// and appends the replacements. This is the sanctioned path for
// re-extracting a finalized chapter; plain appends would duplicate its
// records.
func (s *CanonStore) ReplaceChapter(project, chapter string, facts []types.Fact, events []types.TimelineEvent, states []types.CharacterState) error {
	if err := s.dropFacts(project, chapter); err != nil {
		return err
	}
	if err := s.dropTimeline(project, chapter); err != nil {
		return err
	}
	if err := s.dropStates(project, chapter); err != nil {
		return err
	}
	if err := s.AppendFacts(project, facts); err != nil {
		return err
	}
	if err := s.AppendTimeline(project, events); err != nil {
		return err
	}
	return s.AppendStates(project, states)
}

func (s *CanonStore) dropFacts(project, chapter string) error {
	all, err := s.ListFacts(project)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, f := range all {
		if f.Source != chapter {
			kept = append(kept, f)
		}
	}
	return writeJSONL(s.canonPath(project, factsFile), kept)
}

func (s *CanonStore) dropTimeline(project, chapter string) error {
	all, err := s.ListTimeline(project)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, e := range all {
		if e.Source != chapter {
			kept = append(kept, e)
		}
	}
	return writeJSONL(s.canonPath(project, timelineFile), kept)
}

func (s *CanonStore) dropStates(project, chapter string) error {
	all, err := s.ListStates(project)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, st := range all {
		if st.Chapter != chapter {
			kept = append(kept, st)
		}
	}
	return writeJSONL(s.canonPath(project, statesFile), kept)
}
