package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterSpecNormalizedDropsEmptyItems(t *testing.T) {
	f := FilterSpec{
		PlayTitle:      "  Hamlet  ",
		Themes:         []string{" love ", "", "   "},
		EmotionalTones: []string{},
	}
	n := f.normalized()

	assert.Equal(t, "Hamlet", n.PlayTitle)
	assert.Equal(t, []string{"love"}, n.Themes)
	// 全空的多值集合归一化为未设置
	assert.Nil(t, n.EmotionalTones)
}

func TestFilterSpecValidate(t *testing.T) {
	cases := []struct {
		name    string
		spec    FilterSpec
		wantErr bool
	}{
		{"clean scalars", FilterSpec{PlayTitle: "Romeo and Juliet", ChunkType: "phrase"}, false},
		{"quote in scalar", FilterSpec{PlayTitle: `Ham"let`}, true},
		{"quote in context", FilterSpec{ContextType: `soli"loquy`}, true},
		{"comma in theme", FilterSpec{Themes: []string{"love,fate"}}, true},
		{"quote in tone", FilterSpec{EmotionalTones: []string{`jo"y`}}, true},
		{"comma in character type", FilterSpec{CharacterTypes: []string{"hero,villain"}}, true},
		{"clean multi", FilterSpec{Themes: []string{"love", "fate"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestStorePredicatesOnlyScalarFields(t *testing.T) {
	f := FilterSpec{
		PlayTitle:      "Macbeth",
		ContextType:    "soliloquy",
		ChunkType:      "full_line",
		FormalityLevel: "formal",
		Themes:         []string{"ambition"},
		CharacterTypes: []string{"villain"},
	}

	preds := f.storePredicates()
	assert.Equal(t, map[string]string{
		FieldPlayTitle:      "Macbeth",
		FieldContext:        "soliloquy",
		FieldChunkType:      "full_line",
		FieldFormalityLevel: "formal",
	}, preds)
}

func TestStorePredicatesEmptyWhenUnset(t *testing.T) {
	assert.Nil(t, FilterSpec{Themes: []string{"love"}}.storePredicates())
}

func TestMatchesPostFilters(t *testing.T) {
	meta := Metadata{
		EmotionalTones: []string{"melancholy", "despair"},
		Themes:         []string{"death", "mortality"},
		CharacterType:  "tragic_hero",
	}

	assert.True(t, FilterSpec{}.matchesPostFilters(meta))
	assert.True(t, FilterSpec{Themes: []string{"mortality", "love"}}.matchesPostFilters(meta))
	assert.False(t, FilterSpec{Themes: []string{"love"}}.matchesPostFilters(meta))
	assert.True(t, FilterSpec{EmotionalTones: []string{"despair"}}.matchesPostFilters(meta))
	assert.True(t, FilterSpec{CharacterTypes: []string{"villain", "tragic_hero"}}.matchesPostFilters(meta))
	assert.False(t, FilterSpec{CharacterTypes: []string{"villain"}}.matchesPostFilters(meta))

	// 片段缺失字段时，命名了该字段的过滤器不通过
	bare := Metadata{}
	assert.False(t, FilterSpec{Themes: []string{"death"}}.matchesPostFilters(bare))
	assert.False(t, FilterSpec{CharacterTypes: []string{"tragic_hero"}}.matchesPostFilters(bare))
	assert.True(t, FilterSpec{}.matchesPostFilters(bare))
}
