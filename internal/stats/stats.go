// Package stats computes per-project writing statistics from stored
// drafts and finals.
package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"

	"github.com/yewanyuan/Cursor-Writing/internal/storage"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// DraftReader is the slice of draft persistence the stats service reads.
type DraftReader interface {
	ListChapters(project string) ([]string, error)
	ListVersions(project, chapter string) ([]string, error)
	HasFinal(project, chapter string) bool
	GetFinal(project, chapter string) (string, error)
	LatestDraft(project, chapter string) (*types.Draft, error)
}

// Chapter status in statistics.
const (
	StatusFinal = "final"
	StatusDraft = "draft"
)

// ChapterStats describes one chapter's progress.
type ChapterStats struct {
	Chapter   string `json:"chapter"`
	Title     string `json:"title"`
	Status    string `json:"status"` // final or draft
	WordCount int    `json:"word_count"`
	Versions  int    `json:"versions"`
}

// ProjectStats aggregates a whole project.
type ProjectStats struct {
	Project       string         `json:"project"`
	Chapters      []ChapterStats `json:"chapters"`
	TotalWords    int            `json:"total_words"`
	FinalChapters int            `json:"final_chapters"`
	DraftChapters int            `json:"draft_chapters"`
	AverageWords  int            `json:"average_words"`
}

// Service computes statistics.
type Service struct {
	drafts DraftReader
}

// NewService creates a stats service over the draft reader.
func NewService(drafts DraftReader) *Service {
	return &Service{drafts: drafts}
}

// ProjectStats walks every chapter of a project. Finalized chapters are
// counted from their final text, unfinished ones from the latest draft.
func (s *Service) ProjectStats(ctx context.Context, project string) (*ProjectStats, error) {
	chapters, err := s.drafts.ListChapters(project)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}

	out := &ProjectStats{Project: project}
	for _, chapter := range chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cs, err := s.chapterStats(project, chapter)
		if err != nil {
			return nil, err
		}
		out.Chapters = append(out.Chapters, *cs)
		out.TotalWords += cs.WordCount
		if cs.Status == StatusFinal {
			out.FinalChapters++
		} else {
			out.DraftChapters++
		}
	}
	if n := len(out.Chapters); n > 0 {
		out.AverageWords = out.TotalWords / n
	}
	return out, nil
}

func (s *Service) chapterStats(project, chapter string) (*ChapterStats, error) {
	versions, err := s.drafts.ListVersions(project, chapter)
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", chapter, err)
	}

	cs := &ChapterStats{Chapter: chapter, Versions: len(versions)}

	var content string
	if s.drafts.HasFinal(project, chapter) {
		cs.Status = StatusFinal
		content, err = s.drafts.GetFinal(project, chapter)
		if err != nil {
			return nil, fmt.Errorf("load final of %s: %w", chapter, err)
		}
	} else {
		cs.Status = StatusDraft
		draft, err := s.drafts.LatestDraft(project, chapter)
		if err == nil {
			content = draft.Content
		}
		// a chapter directory with a brief but no draft yet counts as zero
	}

	cs.WordCount = storage.CountWords(content)
	cs.Title = ExtractTitle(content)
	return cs, nil
}

// ExtractTitle returns the text of the first markdown heading, or ""
// when the document has none.
func ExtractTitle(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(gtext.NewReader(src))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			title = string(heading.Text(src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(title)
}
