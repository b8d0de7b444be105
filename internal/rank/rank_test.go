package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docs(texts ...string) []Doc[string] {
	out := make([]Doc[string], len(texts))
	for i, t := range texts {
		out[i] = Doc[string]{Item: t, Text: t}
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "latin words lowercased",
			text: "The Dragon attacked",
			want: []string{"dragon", "attacked"},
		},
		{
			name: "stopwords and single letters dropped",
			text: "a cat and I",
			want: []string{"cat"},
		},
		{
			name: "cjk bigrams plus chars",
			text: "龙族",
			want: []string{"龙", "龙族", "族"},
		},
		{
			name: "mixed script",
			text: "主角 hero",
			want: []string{"主", "主角", "角", "hero"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestBySimilarity_Ordering(t *testing.T) {
	candidates := docs(
		"the dragon burned the village",
		"a quiet morning at the harbor",
		"dragon fire destroyed the village gates",
	)

	got := BySimilarity("dragon village", candidates, 0)
	require.Len(t, got, 3)

	assert.Contains(t, got[0].Item, "dragon")
	assert.Contains(t, got[1].Item, "dragon")
	assert.Equal(t, "a quiet morning at the harbor", got[2].Item)
	assert.Greater(t, got[0].Score, got[2].Score)
}

func TestBySimilarity_IdenticalText(t *testing.T) {
	got := BySimilarity("dragon fire", docs("dragon fire"), 0)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestBySimilarity_DisjointVocabulary(t *testing.T) {
	got := BySimilarity("dragon", docs("harbor morning"), 0)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Score)
}

func TestBySimilarity_EmptyQuery(t *testing.T) {
	candidates := docs("first", "second", "third")

	got := BySimilarity("", candidates, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Item)
	assert.Equal(t, "second", got[1].Item)
	assert.Zero(t, got[0].Score)
}

func TestBySimilarity_StopwordOnlyQuery(t *testing.T) {
	got := BySimilarity("the and of", docs("first", "second"), 0)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Item)
}

func TestBySimilarity_TopK(t *testing.T) {
	candidates := docs("dragon one", "dragon two", "harbor")

	got := BySimilarity("dragon", candidates, 2)
	require.Len(t, got, 2)
	for _, s := range got {
		assert.Contains(t, s.Item, "dragon")
	}
}

func TestBySimilarity_StableTies(t *testing.T) {
	candidates := docs("dragon alpha", "dragon alpha", "dragon alpha")

	got := BySimilarity("dragon alpha", candidates, 0)
	require.Len(t, got, 3)
	assert.Equal(t, got[0].Score, got[1].Score)
	assert.Equal(t, got[1].Score, got[2].Score)
}

func TestBySimilarity_CJKQuery(t *testing.T) {
	candidates := docs(
		"龙族袭击了村庄",
		"平静的港口清晨",
	)

	got := BySimilarity("龙族", candidates, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "龙族袭击了村庄", got[0].Item)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestBySimilarity_NoDocs(t *testing.T) {
	assert.Nil(t, BySimilarity[string]("query", nil, 5))
}
