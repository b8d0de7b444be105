package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// CardStore persists character, world, style, and rules cards as YAML
// files under <project>/cards/.
type CardStore struct {
	base *Store
}

// NewCardStore creates a card store over base.
func NewCardStore(base *Store) *CardStore {
	return &CardStore{base: base}
}

func (s *CardStore) cardsDir(project string) string {
	return filepath.Join(s.base.ProjectDir(project), "cards")
}

// GetCharacter loads one character card by name.
func (s *CardStore) GetCharacter(project, name string) (*types.CharacterCard, error) {
	var card types.CharacterCard
	path := filepath.Join(s.cardsDir(project), "characters", sanitizeName(name)+".yaml")
	if err := readYAML(path, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// SaveCharacter writes a character card, keyed by its name.
func (s *CardStore) SaveCharacter(project string, card *types.CharacterCard) error {
	if strings.TrimSpace(card.Name) == "" {
		return fmt.Errorf("%w: character card needs a name", ErrInvalidName)
	}
	path := filepath.Join(s.cardsDir(project), "characters", sanitizeName(card.Name)+".yaml")
	return writeYAML(path, card)
}

// ListCharacters loads every character card of a project, sorted by
// file name.
func (s *CardStore) ListCharacters(project string) ([]types.CharacterCard, error) {
	return listCards[types.CharacterCard](filepath.Join(s.cardsDir(project), "characters"))
}

// GetWorld loads one world card by name.
func (s *CardStore) GetWorld(project, name string) (*types.WorldCard, error) {
	var card types.WorldCard
	path := filepath.Join(s.cardsDir(project), "world", sanitizeName(name)+".yaml")
	if err := readYAML(path, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// SaveWorld writes a world card, keyed by its name.
func (s *CardStore) SaveWorld(project string, card *types.WorldCard) error {
	if strings.TrimSpace(card.Name) == "" {
		return fmt.Errorf("%w: world card needs a name", ErrInvalidName)
	}
	path := filepath.Join(s.cardsDir(project), "world", sanitizeName(card.Name)+".yaml")
	return writeYAML(path, card)
}

// ListWorld loads every world card of a project, sorted by file name.
func (s *CardStore) ListWorld(project string) ([]types.WorldCard, error) {
	return listCards[types.WorldCard](filepath.Join(s.cardsDir(project), "world"))
}

// GetStyle loads the project's style card.
func (s *CardStore) GetStyle(project string) (*types.StyleCard, error) {
	var card types.StyleCard
	if err := readYAML(filepath.Join(s.cardsDir(project), "style.yaml"), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// SaveStyle writes the project's style card.
func (s *CardStore) SaveStyle(project string, card *types.StyleCard) error {
	return writeYAML(filepath.Join(s.cardsDir(project), "style.yaml"), card)
}

// GetRules loads the project's rules card.
func (s *CardStore) GetRules(project string) (*types.RulesCard, error) {
	var card types.RulesCard
	if err := readYAML(filepath.Join(s.cardsDir(project), "rules.yaml"), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// SaveRules writes the project's rules card.
func (s *CardStore) SaveRules(project string, card *types.RulesCard) error {
	return writeYAML(filepath.Join(s.cardsDir(project), "rules.yaml"), card)
}

// listCards loads every *.yaml card in a directory. A missing directory
// yields an empty slice.
func listCards[T any](dir string) ([]T, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cards in %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	cards := make([]T, 0, len(names))
	for _, name := range names {
		var card T
		if err := readYAML(filepath.Join(dir, name), &card); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}
