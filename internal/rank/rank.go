// Package rank scores candidate texts against a query using TF-IDF
// cosine similarity. Scoring is batch-local: document frequencies are
// computed over the query plus the candidates of a single call, so no
// persistent index is needed.
package rank

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Doc pairs a payload with the text it is ranked by.
type Doc[T any] struct {
	Item T
	Text string
}

// Scored is a ranked document with its similarity score.
type Scored[T any] struct {
	Item  T
	Score float64
}

// Latin-script words dropped before weighting. CJK text is not
// stopword-filtered; bigrams carry enough signal on their own.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"with": {}, "by": {}, "from": {}, "as": {}, "it": {}, "this": {},
	"that": {}, "these": {}, "those": {},
}

// BySimilarity ranks docs against query and returns the topK results in
// descending score order. Ties keep input order. If query is empty or
// produces no terms, docs are returned in input order with score 0 so
// callers degrade to "no ranking" instead of failing. topK <= 0 means
// no limit.
func BySimilarity[T any](query string, docs []Doc[T], topK int) []Scored[T] {
	if len(docs) == 0 {
		return nil
	}

	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return identityOrder(docs, topK)
	}

	docTerms := make([][]string, len(docs))
	for i, d := range docs {
		docTerms[i] = Tokenize(d.Text)
	}

	idf := inverseDocFrequency(queryTerms, docTerms)
	queryVec := tfidfVector(queryTerms, idf)

	scored := make([]Scored[T], len(docs))
	for i, d := range docs {
		scored[i] = Scored[T]{
			Item:  d.Item,
			Score: cosine(queryVec, tfidfVector(docTerms[i], idf)),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func identityOrder[T any](docs []Doc[T], topK int) []Scored[T] {
	n := len(docs)
	if topK > 0 && n > topK {
		n = topK
	}
	out := make([]Scored[T], n)
	for i := 0; i < n; i++ {
		out[i] = Scored[T]{Item: docs[i].Item}
	}
	return out
}

// Tokenize splits mixed-script text into weighting terms. Runs of CJK
// characters produce overlapping bigrams plus the individual characters;
// other runs produce lowercased words. Stopwords and single-letter Latin
// tokens are dropped.
func Tokenize(text string) []string {
	var terms []string
	var cjk, word []rune

	flushCJK := func() {
		for i := 0; i < len(cjk); i++ {
			terms = append(terms, string(cjk[i]))
			if i+1 < len(cjk) {
				terms = append(terms, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}
	flushWord := func() {
		if len(word) > 1 {
			w := strings.ToLower(string(word))
			if _, stop := stopwords[w]; !stop {
				terms = append(terms, w)
			}
		}
		word = word[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, r)
		default:
			flushCJK()
			flushWord()
		}
	}
	flushCJK()
	flushWord()
	return terms
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// inverseDocFrequency computes smoothed IDF over the batch formed by the
// query and all candidates: ln(N/(1+df)) + 1.
func inverseDocFrequency(queryTerms []string, docTerms [][]string) map[string]float64 {
	n := float64(len(docTerms) + 1)
	df := make(map[string]int)
	count := func(terms []string) {
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	count(queryTerms)
	for _, terms := range docTerms {
		count(terms)
	}

	idf := make(map[string]float64, len(df))
	for t, c := range df {
		idf[t] = math.Log(n/float64(1+c)) + 1
	}
	return idf
}

func tfidfVector(terms []string, idf map[string]float64) map[string]float64 {
	if len(terms) == 0 {
		return nil
	}
	tf := make(map[string]float64, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	total := float64(len(terms))
	vec := make(map[string]float64, len(tf))
	for t, c := range tf {
		vec[t] = (c / total) * idf[t]
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot, normA, normB float64
	for t, va := range a {
		normA += va * va
		if vb, ok := b[t]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
