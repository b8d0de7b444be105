package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// MaxDraftVersions caps how many draft versions are kept per chapter.
// Saving past the cap deletes the oldest version.
const MaxDraftVersions = 10

var versionFileRe = regexp.MustCompile(`^v(\d+)\.md$`)

// DraftStore persists per-chapter working artifacts under
// <project>/drafts/<chapter>/: versioned drafts (v1.md, v2.md, ...),
// the scene brief, reviews, the chapter summary, and final.md.
type DraftStore struct {
	base *Store
}

// NewDraftStore creates a draft store over base.
func NewDraftStore(base *Store) *DraftStore {
	return &DraftStore{base: base}
}

func (s *DraftStore) chapterDir(project, chapter string) string {
	return filepath.Join(s.base.ProjectDir(project), "drafts", sanitizeName(chapter))
}

// SaveDraft writes the draft content as the next version and returns
// the assigned version name. Versions beyond MaxDraftVersions are
// pruned oldest-first.
func (s *DraftStore) SaveDraft(project, chapter, content string) (string, error) {
	versions, err := s.ListVersions(project, chapter)
	if err != nil {
		return "", err
	}
	next := 1
	if len(versions) > 0 {
		next = versionNumber(versions[len(versions)-1]) + 1
	}
	version := fmt.Sprintf("v%d", next)

	path := filepath.Join(s.chapterDir(project, chapter), version+".md")
	if err := AtomicWriteFile(path, []byte(content)); err != nil {
		return "", err
	}

	if err := s.pruneVersions(project, chapter); err != nil {
		return "", err
	}
	return version, nil
}

// GetDraft loads one draft version. Word count is computed on load;
// creation time comes from the file.
func (s *DraftStore) GetDraft(project, chapter, version string) (*types.Draft, error) {
	path := filepath.Join(s.chapterDir(project, chapter), sanitizeName(version)+".md")
	content, err := readText(path)
	if err != nil {
		return nil, err
	}

	createdAt := time.Time{}
	if info, err := os.Stat(path); err == nil {
		createdAt = info.ModTime()
	}

	return &types.Draft{
		Chapter:   chapter,
		Version:   version,
		Content:   content,
		WordCount: CountWords(content),
		CreatedAt: createdAt,
	}, nil
}

// LatestDraft loads the highest-numbered draft version of a chapter.
func (s *DraftStore) LatestDraft(project, chapter string) (*types.Draft, error) {
	versions, err := s.ListVersions(project, chapter)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: no drafts for chapter %s", ErrNotFound, chapter)
	}
	return s.GetDraft(project, chapter, versions[len(versions)-1])
}

// ListVersions returns the chapter's draft versions in ascending
// numeric order (v2 before v10).
func (s *DraftStore) ListVersions(project, chapter string) ([]string, error) {
	entries, err := os.ReadDir(s.chapterDir(project, chapter))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	var versions []string
	for _, e := range entries {
		if versionFileRe.MatchString(e.Name()) {
			versions = append(versions, strings.TrimSuffix(e.Name(), ".md"))
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return versionNumber(versions[i]) < versionNumber(versions[j])
	})
	return versions, nil
}

func (s *DraftStore) pruneVersions(project, chapter string) error {
	versions, err := s.ListVersions(project, chapter)
	if err != nil {
		return err
	}
	for len(versions) > MaxDraftVersions {
		oldest := versions[0]
		if err := os.Remove(filepath.Join(s.chapterDir(project, chapter), oldest+".md")); err != nil {
			return fmt.Errorf("failed to prune draft %s: %w", oldest, err)
		}
		versions = versions[1:]
	}
	return nil
}

func versionNumber(version string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(version, "v"))
	return n
}

// SaveBrief writes the chapter's scene brief.
func (s *DraftStore) SaveBrief(project string, brief *types.SceneBrief) error {
	return writeYAML(filepath.Join(s.chapterDir(project, brief.Chapter), "brief.yaml"), brief)
}

// GetBrief loads the chapter's scene brief.
func (s *DraftStore) GetBrief(project, chapter string) (*types.SceneBrief, error) {
	var brief types.SceneBrief
	if err := readYAML(filepath.Join(s.chapterDir(project, chapter), "brief.yaml"), &brief); err != nil {
		return nil, err
	}
	return &brief, nil
}

// SaveReview writes a review, keyed by the draft version it covers.
func (s *DraftStore) SaveReview(project string, review *types.Review) error {
	name := "review_" + sanitizeName(review.DraftVersion) + ".yaml"
	return writeYAML(filepath.Join(s.chapterDir(project, review.Chapter), name), review)
}

// GetReview loads the review of one draft version.
func (s *DraftStore) GetReview(project, chapter, version string) (*types.Review, error) {
	var review types.Review
	name := "review_" + sanitizeName(version) + ".yaml"
	if err := readYAML(filepath.Join(s.chapterDir(project, chapter), name), &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// SaveSummary writes the chapter summary.
func (s *DraftStore) SaveSummary(project string, summary *types.ChapterSummary) error {
	return writeYAML(filepath.Join(s.chapterDir(project, summary.Chapter), "summary.yaml"), summary)
}

// GetSummary loads the chapter summary.
func (s *DraftStore) GetSummary(project, chapter string) (*types.ChapterSummary, error) {
	var summary types.ChapterSummary
	if err := readYAML(filepath.Join(s.chapterDir(project, chapter), "summary.yaml"), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SaveFinal writes the chapter's finalized text.
func (s *DraftStore) SaveFinal(project, chapter, content string) error {
	return AtomicWriteFile(filepath.Join(s.chapterDir(project, chapter), "final.md"), []byte(content))
}

// GetFinal loads the chapter's finalized text.
func (s *DraftStore) GetFinal(project, chapter string) (string, error) {
	return readText(filepath.Join(s.chapterDir(project, chapter), "final.md"))
}

// HasFinal reports whether the chapter has been finalized.
func (s *DraftStore) HasFinal(project, chapter string) bool {
	_, err := os.Stat(filepath.Join(s.chapterDir(project, chapter), "final.md"))
	return err == nil
}

// ListChapters returns every chapter with a draft directory, in
// narrative order: prologue names first, then by chapter number, with
// unnumbered chapters last in lexical order.
func (s *DraftStore) ListChapters(project string) ([]string, error) {
	dir := filepath.Join(s.base.ProjectDir(project), "drafts")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}

	var chapters []string
	for _, e := range entries {
		if e.IsDir() {
			chapters = append(chapters, e.Name())
		}
	}
	SortChapters(chapters)
	return chapters, nil
}

// PreviousSummaries returns the summaries of chapters ordered before
// the given chapter, oldest first. Chapters without a summary are
// skipped.
func (s *DraftStore) PreviousSummaries(project, chapter string) ([]types.ChapterSummary, error) {
	chapters, err := s.ListChapters(project)
	if err != nil {
		return nil, err
	}

	key := chapterSortKey(chapter)
	var summaries []types.ChapterSummary
	for _, ch := range chapters {
		if ch == sanitizeName(chapter) || !sortKeyLess(chapterSortKey(ch), key) {
			continue
		}
		summary, err := s.GetSummary(project, ch)
		if err != nil {
			continue
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}
