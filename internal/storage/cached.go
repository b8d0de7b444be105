package storage

import (
	"github.com/yewanyuan/Cursor-Writing/internal/cache"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Cached store wrappers. Reads go through the shared StoreCache; writes
// hit disk and invalidate the written category so the next read reloads.

// CachedCardStore wraps a CardStore with read-through caching.
type CachedCardStore struct {
	store *CardStore
	cache *cache.StoreCache
}

// NewCachedCardStore wraps store with c.
func NewCachedCardStore(store *CardStore, c *cache.StoreCache) *CachedCardStore {
	return &CachedCardStore{store: store, cache: c}
}

// GetCharacter loads one character card, cached.
func (s *CachedCardStore) GetCharacter(project, name string) (*types.CharacterCard, error) {
	v, err := s.cache.GetOrLoad(cache.CategoryCharacter, project, []string{name}, func() (any, error) {
		return s.store.GetCharacter(project, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.CharacterCard), nil
}

// ListCharacters loads every character card of a project, cached.
func (s *CachedCardStore) ListCharacters(project string) ([]types.CharacterCard, error) {
	v, err := s.cache.GetOrLoad(cache.CategoryCharacter, project, []string{"_all"}, func() (any, error) {
		return s.store.ListCharacters(project)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.CharacterCard), nil
}

// SaveCharacter writes the card and invalidates the character cache.
func (s *CachedCardStore) SaveCharacter(project string, card *types.CharacterCard) error {
	if err := s.store.SaveCharacter(project, card); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategoryCharacter, project)
	return nil
}

// ListWorld loads every world card of a project, cached.
func (s *CachedCardStore) ListWorld(project string) ([]types.WorldCard, error) {
	v, err := s.cache.GetOrLoad(cache.CategoryWorld, project, []string{"_all"}, func() (any, error) {
		return s.store.ListWorld(project)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.WorldCard), nil
}

// SaveWorld writes the card and invalidates the world cache.
func (s *CachedCardStore) SaveWorld(project string, card *types.WorldCard) error {
	if err := s.store.SaveWorld(project, card); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategoryWorld, project)
	return nil
}

// GetStyle loads the style card, cached.
func (s *CachedCardStore) GetStyle(project string) (*types.StyleCard, error) {
	v, err := s.cache.GetOrLoad(cache.CategoryStyle, project, nil, func() (any, error) {
		return s.store.GetStyle(project)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.StyleCard), nil
}

// SaveStyle writes the style card and invalidates its cache.
func (s *CachedCardStore) SaveStyle(project string, card *types.StyleCard) error {
	if err := s.store.SaveStyle(project, card); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategoryStyle, project)
	return nil
}

// GetRules loads the rules card, cached.
func (s *CachedCardStore) GetRules(project string) (*types.RulesCard, error) {
	v, err := s.cache.GetOrLoad(cache.CategoryRules, project, nil, func() (any, error) {
		return s.store.GetRules(project)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.RulesCard), nil
}

// SaveRules writes the rules card and invalidates its cache.
func (s *CachedCardStore) SaveRules(project string, card *types.RulesCard) error {
	if err := s.store.SaveRules(project, card); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategoryRules, project)
	return nil
}

// CachedCanonStore wraps a CanonStore with read-through caching.
type CachedCanonStore struct {
	store *CanonStore
	cache *cache.StoreCache
}

// NewCachedCanonStore wraps store with c.
func NewCachedCanonStore(store *CanonStore, c *cache.StoreCache) *CachedCanonStore {
	return &CachedCanonStore{store: store, cache: c}
}

// ListFacts returns all facts of a project, cached.
func (s *CachedCanonStore) ListFacts(project string) ([]types.Fact, error) {
	v, err := s.cache.GetOrLoad(cache.CategoryFact, project, nil, func() (any, error) {
		return s.store.ListFacts(project)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Fact), nil
}

// AppendFacts appends facts and invalidates the fact cache.
func (s *CachedCanonStore) AppendFacts(project string, facts []types.Fact) error {
	if err := s.store.AppendFacts(project, facts); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategoryFact, project)
	return nil
}

// ListTimeline returns all timeline events of a project, cached.
func (s *CachedCanonStore) ListTimeline(project string) ([]types.TimelineEvent, error) {
	v, err := s.cache.GetOrLoad(cache.CategoryTimeline, project, nil, func() (any, error) {
		return s.store.ListTimeline(project)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.TimelineEvent), nil
}

// AppendTimeline appends events and invalidates the timeline cache.
func (s *CachedCanonStore) AppendTimeline(project string, events []types.TimelineEvent) error {
	if err := s.store.AppendTimeline(project, events); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategoryTimeline, project)
	return nil
}

// LatestStates returns the most recent snapshot per character, cached.
func (s *CachedCanonStore) LatestStates(project string) (map[string]types.CharacterState, error) {
	v, err := s.cache.GetOrLoad(cache.CategoryState, project, []string{"latest"}, func() (any, error) {
		return s.store.LatestStates(project)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]types.CharacterState), nil
}

// AppendStates appends snapshots and invalidates the state cache.
func (s *CachedCanonStore) AppendStates(project string, states []types.CharacterState) error {
	if err := s.store.AppendStates(project, states); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategoryState, project)
	return nil
}

// ReplaceChapter replaces the chapter's canon records and invalidates
// all canon categories.
func (s *CachedCanonStore) ReplaceChapter(project, chapter string, facts []types.Fact, events []types.TimelineEvent, states []types.CharacterState) error {
	if err := s.store.ReplaceChapter(project, chapter, facts, events, states); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategoryFact, project)
	s.cache.InvalidateCategory(cache.CategoryTimeline, project)
	s.cache.InvalidateCategory(cache.CategoryState, project)
	return nil
}

// CachedDraftStore wraps a DraftStore, caching summary reads. Draft
// content itself is not cached: drafts churn within a session and the
// short TTL would mostly serve stale versions.
type CachedDraftStore struct {
	*DraftStore
	cache *cache.StoreCache
}

// NewCachedDraftStore wraps store with c.
func NewCachedDraftStore(store *DraftStore, c *cache.StoreCache) *CachedDraftStore {
	return &CachedDraftStore{DraftStore: store, cache: c}
}

// PreviousSummaries returns prior chapter summaries, cached.
func (s *CachedDraftStore) PreviousSummaries(project, chapter string) ([]types.ChapterSummary, error) {
	v, err := s.cache.GetOrLoad(cache.CategorySummary, project, []string{"before", chapter}, func() (any, error) {
		return s.DraftStore.PreviousSummaries(project, chapter)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.ChapterSummary), nil
}

// SaveSummary writes the summary and invalidates the summary cache.
func (s *CachedDraftStore) SaveSummary(project string, summary *types.ChapterSummary) error {
	if err := s.DraftStore.SaveSummary(project, summary); err != nil {
		return err
	}
	s.cache.InvalidateCategory(cache.CategorySummary, project)
	return nil
}
