// Package assembler builds the context bundle for a generation call:
// it gathers cards, canon, and summaries concurrently, selects what is
// relevant to the chapter goal, and sizes the result to the token
// budget.
package assembler

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/yewanyuan/Cursor-Writing/internal/rank"
	"github.com/yewanyuan/Cursor-Writing/internal/storage"
	"github.com/yewanyuan/Cursor-Writing/internal/token"
	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Selection thresholds and caps. Thresholds are low because TF-IDF
// scores against short goals are small; they only exist to drop
// completely unrelated cards.
const (
	maxCharacters      = 10
	characterThreshold = 0.05
	maxWorld           = 5
	worldThreshold     = 0.03
	worldFallback      = 3
	maxRecentSummaries = 20
	maxSummaries       = 5
	factRerankAbove    = 5
)

// CardReader supplies project cards.
type CardReader interface {
	ListCharacters(project string) ([]types.CharacterCard, error)
	ListWorld(project string) ([]types.WorldCard, error)
	GetStyle(project string) (*types.StyleCard, error)
	GetRules(project string) (*types.RulesCard, error)
}

// CanonReader supplies established facts.
type CanonReader interface {
	ListFacts(project string) ([]types.Fact, error)
}

// SummaryReader supplies summaries of chapters before the given one.
type SummaryReader interface {
	PreviousSummaries(project, chapter string) ([]types.ChapterSummary, error)
}

// Assembler selects and sizes context for one generation call.
type Assembler struct {
	cards     CardReader
	canon     CanonReader
	summaries SummaryReader
	budgeter  *token.Budgeter
	logger    *slog.Logger
}

// New creates an assembler over the given readers and budgeter.
func New(cards CardReader, canon CanonReader, summaries SummaryReader, budgeter *token.Budgeter) *Assembler {
	return &Assembler{
		cards:     cards,
		canon:     canon,
		summaries: summaries,
		budgeter:  budgeter,
		logger:    slog.Default().With("component", "assembler"),
	}
}

// Request describes what the bundle is assembled for.
type Request struct {
	Project string

	// Chapter being written; summaries come from chapters before it.
	Chapter string

	// Goal is the chapter goal text relevance is scored against.
	Goal string

	// Participants are characters that must be included regardless of
	// relevance score.
	Participants []string
}

// Assemble gathers all source material concurrently, applies the
// per-category selection policies, and returns a bundle trimmed to the
// token budget. Missing style or rules cards are not an error.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*types.ContextBundle, error) {
	var (
		characters []types.CharacterCard
		world      []types.WorldCard
		style      *types.StyleCard
		rules      *types.RulesCard
		facts      []types.Fact
		summaries  []types.ChapterSummary
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		characters, err = a.cards.ListCharacters(req.Project)
		return err
	})
	g.Go(func() error {
		var err error
		world, err = a.cards.ListWorld(req.Project)
		return err
	})
	g.Go(func() error {
		var err error
		style, err = a.cards.GetStyle(req.Project)
		if errors.Is(err, storage.ErrNotFound) {
			style, err = nil, nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		rules, err = a.cards.GetRules(req.Project)
		if errors.Is(err, storage.ErrNotFound) {
			rules, err = nil, nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		facts, err = a.canon.ListFacts(req.Project)
		return err
	})
	g.Go(func() error {
		var err error
		summaries, err = a.summaries.PreviousSummaries(req.Project, req.Chapter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundle := &types.ContextBundle{
		Characters: a.selectCharacters(req, characters),
		World:      a.selectWorld(req.Goal, world),
		Style:      style,
		Rules:      rules,
		Facts:      a.selectFacts(req.Goal, facts),
		Summaries:  a.selectSummaries(req.Goal, summaries),
	}

	allocated := a.budgeter.Allocate(bundle, nil)
	a.logger.Debug("context assembled",
		"project", req.Project, "chapter", req.Chapter,
		"characters", len(allocated.Characters), "world", len(allocated.World),
		"facts", len(allocated.Facts), "summaries", len(allocated.Summaries))
	return allocated, nil
}

// selectCharacters always includes the chapter's participants, then
// fills the remaining slots with cards relevant to the goal.
func (a *Assembler) selectCharacters(req Request, cards []types.CharacterCard) []types.CharacterCard {
	participant := make(map[string]bool, len(req.Participants))
	for _, name := range req.Participants {
		participant[name] = true
	}

	var selected []types.CharacterCard
	var rest []rank.Doc[types.CharacterCard]
	for _, c := range cards {
		if participant[c.Name] {
			selected = append(selected, c)
			continue
		}
		rest = append(rest, rank.Doc[types.CharacterCard]{Item: c, Text: characterText(c)})
	}

	for _, scored := range rank.BySimilarity(req.Goal, rest, 0) {
		if len(selected) >= maxCharacters {
			break
		}
		if scored.Score < characterThreshold {
			break
		}
		selected = append(selected, scored.Item)
	}
	return selected
}

// selectWorld keeps world cards relevant to the goal. When nothing
// clears the threshold the first few cards are kept anyway; an empty
// world section loses too much grounding.
func (a *Assembler) selectWorld(goal string, cards []types.WorldCard) []types.WorldCard {
	docs := make([]rank.Doc[types.WorldCard], len(cards))
	for i, w := range cards {
		docs[i] = rank.Doc[types.WorldCard]{Item: w, Text: worldText(w)}
	}

	var selected []types.WorldCard
	for _, scored := range rank.BySimilarity(goal, docs, maxWorld) {
		if scored.Score < worldThreshold {
			break
		}
		selected = append(selected, scored.Item)
	}
	if len(selected) == 0 {
		n := len(cards)
		if n > worldFallback {
			n = worldFallback
		}
		selected = append(selected, cards[:n]...)
	}
	return selected
}

// selectFacts orders facts by importance then recency, admits them
// greedily into the canon token budget, and re-ranks the survivors by
// goal relevance when there are enough of them to matter.
func (a *Assembler) selectFacts(goal string, facts []types.Fact) []types.Fact {
	ordered := make([]types.Fact, len(facts))
	position := make(map[string]int, len(facts))
	for i, f := range facts {
		ordered[i] = f
		position[f.ID] = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].Importance.Rank(), ordered[j].Importance.Rank()
		if ri != rj {
			return ri < rj
		}
		// more recent first within the same importance
		return position[ordered[i].ID] > position[ordered[j].ID]
	})

	budget := a.budgeter.Budget(token.CategoryCanon)
	used := 0
	var admitted []types.Fact
	for _, f := range ordered {
		cost := a.budgeter.Estimate(f.Statement)
		if used+cost > budget {
			break
		}
		used += cost
		admitted = append(admitted, f)
	}

	if len(admitted) <= factRerankAbove {
		return admitted
	}

	docs := make([]rank.Doc[types.Fact], len(admitted))
	for i, f := range admitted {
		docs[i] = rank.Doc[types.Fact]{Item: f, Text: f.Statement}
	}
	reranked := rank.BySimilarity(goal, docs, 0)
	out := make([]types.Fact, len(reranked))
	for i, scored := range reranked {
		out[i] = scored.Item
	}
	return out
}

// selectSummaries blends goal relevance with recency over the most
// recent summaries: score = 0.7*relevance + 0.3*(1/(1+i*0.2)) where i
// counts back from the most recent chapter. The winners are returned in
// chronological order.
func (a *Assembler) selectSummaries(goal string, summaries []types.ChapterSummary) []types.ChapterSummary {
	if len(summaries) > maxRecentSummaries {
		summaries = summaries[len(summaries)-maxRecentSummaries:]
	}
	if len(summaries) == 0 {
		return nil
	}

	type indexed struct {
		summary types.ChapterSummary
		pos     int
	}
	docs := make([]rank.Doc[indexed], len(summaries))
	for i, s := range summaries {
		docs[i] = rank.Doc[indexed]{
			Item: indexed{summary: s, pos: i},
			Text: summaryText(s),
		}
	}

	scored := rank.BySimilarity(goal, docs, 0)
	for i := range scored {
		fromRecent := len(summaries) - 1 - scored[i].Item.pos
		recency := 1.0 / (1.0 + float64(fromRecent)*0.2)
		scored[i].Score = 0.7*scored[i].Score + 0.3*recency
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	n := len(scored)
	if n > maxSummaries {
		n = maxSummaries
	}
	top := scored[:n]
	sort.Slice(top, func(i, j int) bool {
		return top[i].Item.pos < top[j].Item.pos
	})

	out := make([]types.ChapterSummary, n)
	for i, s := range top {
		out[i] = s.Item.summary
	}
	return out
}
