package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakespeare-quote-api/internal/application/quote"
)

func TestJoinListDropsEmptyValues(t *testing.T) {
	assert.Equal(t, "love,fate", joinList([]string{" love ", "", "fate", "  "}))
	assert.Equal(t, "", joinList(nil))
	assert.Equal(t, "", joinList([]string{"", "  "}))
}

func TestSplitListRoundTrip(t *testing.T) {
	assert.Equal(t, []string{"love", "fate"}, splitList("love,fate"))
	assert.Equal(t, []string{"love", "fate"}, splitList(" love , fate ,"))
	assert.Nil(t, splitList(""))

	values := []string{"betrayal", "ambition", "fate"}
	assert.Equal(t, values, splitList(joinList(values)))
}

func TestFragmentRowRoundTrip(t *testing.T) {
	frag := &quote.Fragment{
		ID:        "chunk-001",
		Text:      "What's in a name? That which we call a rose",
		Embedding: []float32{0.1, 0.2, 0.3},
		Meta: quote.Metadata{
			PlayTitle:      "Romeo and Juliet",
			Character:      "JULIET",
			CharacterType:  "lover",
			Act:            2,
			Scene:          2,
			ChunkType:      "monologue",
			Context:        "romantic",
			FormalityLevel: "elevated",
			Meter:          "iambic_pentameter",
			EmotionalTones: []string{"longing", "joy"},
			Themes:         []string{"love", "identity"},
		},
	}

	row := rowFromFragment(frag)
	assert.Equal(t, "longing,joy", row.EmotionalTone)
	assert.Equal(t, "love,identity", row.Themes)
	assert.Equal(t, frag.Embedding, row.Vector)

	back := fragmentFromRow(row)
	assert.Equal(t, frag.ID, back.ID)
	assert.Equal(t, frag.Text, back.Text)
	assert.Equal(t, frag.Meta, back.Meta)
	// 行转回片段不携带向量
	assert.Nil(t, back.Embedding)
}

func TestFragmentsSchemaFields(t *testing.T) {
	schema := FragmentsSchema(0)
	assert.Equal(t, CollectionFragments, schema.CollectionName)

	byName := make(map[string]*entity.Field, len(schema.Fields))
	for _, f := range schema.Fields {
		byName[f.Name] = f
	}

	id, ok := byName[fieldID]
	require.True(t, ok)
	assert.True(t, id.PrimaryKey)
	assert.False(t, id.AutoID)

	vector, ok := byName[fieldVector]
	require.True(t, ok)
	assert.Equal(t, "384", vector.TypeParams["dim"])

	// 输出字段集合与 schema 保持一致（向量除外）
	for _, name := range fragmentOutputFields {
		_, ok := byName[name]
		assert.True(t, ok, "output field %s missing from schema", name)
	}
	assert.Len(t, schema.Fields, len(fragmentOutputFields)+1)
}

func TestBuildFilterExprDeterministic(t *testing.T) {
	expr := buildFilterExpr(map[string]string{
		"play_title": "Hamlet",
		"context":    "philosophical",
		"chunk_type": "soliloquy",
	})
	assert.Equal(t, `chunk_type == "soliloquy" && context == "philosophical" && play_title == "Hamlet"`, expr)

	assert.Equal(t, "", buildFilterExpr(nil))
	assert.Equal(t, `play_title == "Macbeth"`, buildFilterExpr(map[string]string{"play_title": "Macbeth"}))
}

func TestEscapeValueStripsQuotes(t *testing.T) {
	expr := buildFilterExpr(map[string]string{"play_title": `Ham"let`})
	assert.Equal(t, `play_title == "Hamlet"`, expr)
}
