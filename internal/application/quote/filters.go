package quote

import (
	"fmt"
	"strings"
)

// 存储层可下推的标量过滤字段名。
// 下推/客户端过滤的划分按字段身份固定，不随调用方选择变化：
// 存储层的谓词语言只支持标量等值匹配，多值字段（逗号连接存储）无法下推。
const (
	FieldPlayTitle      = "play_title"
	FieldContext        = "context"
	FieldChunkType      = "chunk_type"
	FieldFormalityLevel = "formality_level"
)

// FilterSpec 单次检索的过滤器说明。值对象，不持久化。
type FilterSpec struct {
	// 标量字段：下推到存储层做精确匹配。
	PlayTitle      string
	ContextType    string
	ChunkType      string
	FormalityLevel string

	// 多值字段：仅客户端过滤，"请求集与片段字段交集非空"即通过。
	// 空请求集视为未设置该过滤器，而非"匹配空"。
	EmotionalTones []string
	Themes         []string

	// CharacterType 在片段元数据中是入库时推导的标量字段，
	// 但请求方可给出多个候选类型，按"任一匹配"在客户端过滤。
	CharacterTypes []string
}

// normalized 返回去除空白项后的副本
func (f FilterSpec) normalized() FilterSpec {
	out := f
	out.PlayTitle = strings.TrimSpace(f.PlayTitle)
	out.ContextType = strings.TrimSpace(f.ContextType)
	out.ChunkType = strings.TrimSpace(f.ChunkType)
	out.FormalityLevel = strings.TrimSpace(f.FormalityLevel)
	out.EmotionalTones = trimNonEmpty(f.EmotionalTones)
	out.Themes = trimNonEmpty(f.Themes)
	out.CharacterTypes = trimNonEmpty(f.CharacterTypes)
	return out
}

// Validate 在发出任何存储调用之前校验过滤器值。
// 标量值中的引号无法在存储层谓词中表达，多值项中的逗号与存储的
// 逗号连接表示冲突，二者都直接拒绝。
func (f FilterSpec) Validate() error {
	for field, val := range f.scalarValues() {
		if strings.Contains(val, `"`) {
			return invalidFilter(fmt.Sprintf("filter %s contains a quote character", field))
		}
	}
	for field, vals := range map[string][]string{
		"emotional_tone": f.EmotionalTones,
		"themes":         f.Themes,
		"character_type": f.CharacterTypes,
	} {
		for _, val := range vals {
			if strings.ContainsAny(val, `",`) {
				return invalidFilter(fmt.Sprintf("filter %s value %q contains a reserved character", field, val))
			}
		}
	}
	return nil
}

// scalarValues 返回已设置的标量过滤字段
func (f FilterSpec) scalarValues() map[string]string {
	out := make(map[string]string, 4)
	if f.PlayTitle != "" {
		out[FieldPlayTitle] = f.PlayTitle
	}
	if f.ContextType != "" {
		out[FieldContext] = f.ContextType
	}
	if f.ChunkType != "" {
		out[FieldChunkType] = f.ChunkType
	}
	if f.FormalityLevel != "" {
		out[FieldFormalityLevel] = f.FormalityLevel
	}
	return out
}

// storePredicates 构建下推给存储层的精确匹配谓词
func (f FilterSpec) storePredicates() map[string]string {
	preds := f.scalarValues()
	if len(preds) == 0 {
		return nil
	}
	return preds
}

// matchesPostFilters 对单个片段执行客户端过滤。
// 多值字段按 OR 语义：请求集中任一值出现在片段字段中即通过；
// 片段完全缺失该字段时，命名了该字段的过滤器一律不通过。
func (f FilterSpec) matchesPostFilters(meta Metadata) bool {
	if len(f.EmotionalTones) > 0 && !anyIntersect(f.EmotionalTones, meta.EmotionalTones) {
		return false
	}
	if len(f.Themes) > 0 && !anyIntersect(f.Themes, meta.Themes) {
		return false
	}
	if len(f.CharacterTypes) > 0 {
		if meta.CharacterType == "" || !contains(f.CharacterTypes, meta.CharacterType) {
			return false
		}
	}
	return true
}

func anyIntersect(requested, have []string) bool {
	for _, r := range requested {
		if contains(have, r) {
			return true
		}
	}
	return false
}

func contains(list []string, val string) bool {
	for _, v := range list {
		if v == val {
			return true
		}
	}
	return false
}

func trimNonEmpty(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
