package token

import (
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Budget categories. Cards covers character and world cards together;
// system rules covers the style and rules cards.
const (
	CategorySystemRules   = "system_rules"
	CategoryCards         = "cards"
	CategoryCanon         = "canon"
	CategorySummaries     = "summaries"
	CategoryCurrentDraft  = "current_draft"
	CategoryOutputReserve = "output_reserve"
)

// unknownFraction is used for categories outside the configured split.
const unknownFraction = 0.10

// truncationMarker is appended to text cut down by TruncateToBudget.
const truncationMarker = "\n\n...(内容过长，已截断)"

// Bundle sections in default admission order. Characters and style come
// first because dropping them damages generation the most.
var defaultPriorities = []string{"characters", "style", "rules", "facts", "summaries", "world"}

// sectionCategory maps a bundle section to the budget category whose
// allowance it consumes. Sections sharing a category share its budget.
var sectionCategory = map[string]string{
	"characters": CategoryCards,
	"world":      CategoryCards,
	"style":      CategorySystemRules,
	"rules":      CategorySystemRules,
	"facts":      CategoryCanon,
	"summaries":  CategorySummaries,
}

// Budgeter sizes text against per-category token allowances.
type Budgeter struct {
	config types.BudgetConfig
	est    Estimator
	logger *slog.Logger
}

// NewBudgeter creates a budgeter. A nil estimator falls back to the
// heuristic.
func NewBudgeter(config types.BudgetConfig, est Estimator) *Budgeter {
	if est == nil {
		est = HeuristicEstimator{}
	}
	return &Budgeter{
		config: config,
		est:    est,
		logger: slog.Default().With("component", "budgeter"),
	}
}

// Estimate returns the approximate token count of text.
func (b *Budgeter) Estimate(text string) int {
	return b.est.Estimate(text)
}

// Budget returns the token allowance of a category. Unknown categories
// get a conservative 10% of the total.
func (b *Budgeter) Budget(category string) int {
	fraction := unknownFraction
	switch category {
	case CategorySystemRules:
		fraction = b.config.SystemRules
	case CategoryCards:
		fraction = b.config.Cards
	case CategoryCanon:
		fraction = b.config.Canon
	case CategorySummaries:
		fraction = b.config.Summaries
	case CategoryCurrentDraft:
		fraction = b.config.CurrentDraft
	case CategoryOutputReserve:
		fraction = b.config.OutputReserve
	}
	return int(float64(b.config.TotalTokens) * fraction)
}

// CheckBudget reports whether text fits in the category's allowance,
// along with the estimate and the allowance.
func (b *Budgeter) CheckBudget(text, category string) (ok bool, estimated, budget int) {
	estimated = b.est.Estimate(text)
	budget = b.Budget(category)
	return estimated <= budget, estimated, budget
}

// TruncateToBudget returns text unchanged when it fits the category's
// allowance; otherwise it cuts the text proportionally, keeping a 5%
// safety margin below the allowance, and appends a truncation marker.
func (b *Budgeter) TruncateToBudget(text, category string) string {
	ok, estimated, budget := b.CheckBudget(text, category)
	if ok || estimated == 0 {
		return text
	}
	ratio := float64(budget) / float64(estimated)
	runes := []rune(text)
	keep := int(float64(len(runes)) * ratio * 0.95)
	if keep < 0 {
		keep = 0
	}
	b.logger.Debug("truncating to budget",
		"category", category, "estimated", estimated, "budget", budget, "kept_runes", keep)
	return string(runes[:keep]) + truncationMarker
}

// Allocate admits bundle content into the per-category allowances in
// priority order. Within each section items are admitted greedily; the
// first item that would overflow its category's allowance closes that
// section, and allocation moves on to the next one. Sections that map
// to the same category draw from a shared allowance. A nil priorities
// slice uses the default order.
func (b *Budgeter) Allocate(bundle *types.ContextBundle, priorities []string) *types.ContextBundle {
	if bundle == nil {
		return nil
	}
	if priorities == nil {
		priorities = defaultPriorities
	}

	out := &types.ContextBundle{}
	used := make(map[string]int)

	admit := func(section, text string) bool {
		category := sectionCategory[section]
		cost := b.est.Estimate(text)
		if used[category]+cost > b.Budget(category) {
			return false
		}
		used[category] += cost
		return true
	}

	for _, section := range priorities {
		switch section {
		case "characters":
			for _, c := range bundle.Characters {
				if !admit(section, yamlText(c)) {
					break
				}
				out.Characters = append(out.Characters, c)
			}
		case "world":
			for _, w := range bundle.World {
				if !admit(section, yamlText(w)) {
					break
				}
				out.World = append(out.World, w)
			}
		case "style":
			if bundle.Style != nil && admit(section, yamlText(bundle.Style)) {
				out.Style = bundle.Style
			}
		case "rules":
			if bundle.Rules != nil && admit(section, yamlText(bundle.Rules)) {
				out.Rules = bundle.Rules
			}
		case "facts":
			for _, f := range bundle.Facts {
				if !admit(section, f.Statement) {
					break
				}
				out.Facts = append(out.Facts, f)
			}
		case "summaries":
			for _, s := range bundle.Summaries {
				if !admit(section, s.Summary+strings.Join(s.KeyEvents, " ")) {
					break
				}
				out.Summaries = append(out.Summaries, s)
			}
		}
	}

	b.logger.Debug("bundle allocated",
		"characters", len(out.Characters), "world", len(out.World),
		"facts", len(out.Facts), "summaries", len(out.Summaries),
		"used", used)
	return out
}

// yamlText renders a value the way it will appear in the prompt, for
// sizing purposes.
func yamlText(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
