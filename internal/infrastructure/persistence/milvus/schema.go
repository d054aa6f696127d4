package milvus

import (
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"shakespeare-quote-api/internal/application/quote"
)

const (
	// CollectionFragments 文本片段集合
	CollectionFragments = "fragments"

	// DefaultVectorDimension 向量维度（all-MiniLM-L6-v2）
	DefaultVectorDimension = 384

	listSeparator = ","
)

// 标量字段名。检索谓词与 schema 字段一一对应。
const (
	fieldID             = "id"
	fieldVector         = "vector"
	fieldText           = "chunk_text"
	fieldPlayTitle      = "play_title"
	fieldCharacter      = "character"
	fieldCharacterType  = "character_type"
	fieldAct            = "act"
	fieldScene          = "scene"
	fieldChunkType      = "chunk_type"
	fieldContext        = "context"
	fieldFormalityLevel = "formality_level"
	fieldMeter          = "meter"
	fieldEmotionalTone  = "emotional_tone"
	fieldThemes         = "themes"
)

// fragmentOutputFields Search/Query 取回的字段集合（除向量外的全部字段）
var fragmentOutputFields = []string{
	fieldID, fieldText,
	fieldPlayTitle, fieldCharacter, fieldCharacterType,
	fieldAct, fieldScene,
	fieldChunkType, fieldContext, fieldFormalityLevel, fieldMeter,
	fieldEmotionalTone, fieldThemes,
}

// FragmentsSchema 文本片段 Collection Schema。
// 多值字段（emotional_tone/themes）以逗号连接存为 VarChar，
// 值内不允许出现逗号，由应用层在入口处校验。
func FragmentsSchema(dim int) *entity.Schema {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &entity.Schema{
		CollectionName: CollectionFragments,
		Description:    "Shakespeare text fragments for semantic quote retrieval",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     fieldText,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     fieldPlayTitle,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     fieldCharacter,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     fieldCharacterType,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldAct,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldScene,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldChunkType,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldContext,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldFormalityLevel,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     fieldMeter,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldEmotionalTone,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     fieldThemes,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
		},
	}
}

// fragmentRow 片段的行表示，字段与 schema 一一对应
type fragmentRow struct {
	ID             string
	Vector         []float32
	Text           string
	PlayTitle      string
	Character      string
	CharacterType  string
	Act            int64
	Scene          int64
	ChunkType      string
	Context        string
	FormalityLevel string
	Meter          string
	EmotionalTone  string
	Themes         string
}

// rowFromFragment 应用层片段转行表示。多值字段在此处（且仅在此处）逗号连接。
func rowFromFragment(f *quote.Fragment) *fragmentRow {
	return &fragmentRow{
		ID:             f.ID,
		Vector:         f.Embedding,
		Text:           f.Text,
		PlayTitle:      f.Meta.PlayTitle,
		Character:      f.Meta.Character,
		CharacterType:  f.Meta.CharacterType,
		Act:            f.Meta.Act,
		Scene:          f.Meta.Scene,
		ChunkType:      f.Meta.ChunkType,
		Context:        f.Meta.Context,
		FormalityLevel: f.Meta.FormalityLevel,
		Meter:          f.Meta.Meter,
		EmotionalTone:  joinList(f.Meta.EmotionalTones),
		Themes:         joinList(f.Meta.Themes),
	}
}

// fragmentFromRow 行表示转应用层片段（不含向量）
func fragmentFromRow(row *fragmentRow) *quote.Fragment {
	return &quote.Fragment{
		ID:   row.ID,
		Text: row.Text,
		Meta: quote.Metadata{
			PlayTitle:      row.PlayTitle,
			Character:      row.Character,
			CharacterType:  row.CharacterType,
			Act:            row.Act,
			Scene:          row.Scene,
			ChunkType:      row.ChunkType,
			Context:        row.Context,
			FormalityLevel: row.FormalityLevel,
			Meter:          row.Meter,
			EmotionalTones: splitList(row.EmotionalTone),
			Themes:         splitList(row.Themes),
		},
	}
}

func joinList(values []string) string {
	var kept []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, listSeparator)
}

func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(joined, listSeparator) {
		v = strings.TrimSpace(v)
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}
