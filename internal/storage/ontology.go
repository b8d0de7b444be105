package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yewanyuan/Cursor-Writing/internal/ontology"
)

const ontologyFile = "story_ontology.yaml"

// OntologyStore persists each project's story ontology as one YAML
// document under <project>/ontology/.
type OntologyStore struct {
	base *Store
}

// NewOntologyStore creates an ontology store over the base store.
func NewOntologyStore(base *Store) *OntologyStore {
	return &OntologyStore{base: base}
}

func (s *OntologyStore) path(project string) string {
	return filepath.Join(s.base.ProjectDir(project), "ontology", ontologyFile)
}

// Get loads a project's ontology. A project without one gets a fresh
// empty ontology.
func (s *OntologyStore) Get(project string) (*ontology.StoryOntology, error) {
	var o ontology.StoryOntology
	err := readYAML(s.path(project), &o)
	if errors.Is(err, ErrNotFound) {
		return ontology.New(project), nil
	}
	if err != nil {
		return nil, err
	}
	if o.Characters.Nodes == nil {
		o.Characters.Nodes = make(map[string]*ontology.CharacterNode)
	}
	return &o, nil
}

// Save persists the ontology atomically, bumping its version.
func (s *OntologyStore) Save(project string, o *ontology.StoryOntology) error {
	o.Version++
	return writeYAML(s.path(project), o)
}

// RebuildFromChapter drops ontology records contributed by the given
// chapter and later ones, so they can be re-extracted after a rewrite.
// Returns the numbers of events and relationships removed.
func (s *OntologyStore) RebuildFromChapter(project, chapter string) (eventsRemoved, relsRemoved int, err error) {
	o, err := s.Get(project)
	if err != nil {
		return 0, 0, err
	}
	eventsRemoved, relsRemoved = o.RebuildFrom(chapter)
	if err := s.Save(project, o); err != nil {
		return 0, 0, err
	}
	return eventsRemoved, relsRemoved, nil
}

// Clear deletes a project's ontology file.
func (s *OntologyStore) Clear(project string) error {
	err := os.Remove(s.path(project))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear ontology: %w", err)
	}
	return nil
}

var _ ontology.Store = (*OntologyStore)(nil)
