package quote

// Metadata 片段的结构化元数据。
// 标量字段与多值字段的划分在此固定：多值字段（情感、主题）只能在客户端过滤，
// 标量字段可以下推到存储层做精确匹配。
type Metadata struct {
	PlayTitle      string `json:"play_title,omitempty"`
	Character      string `json:"character,omitempty"`
	CharacterType  string `json:"character_type,omitempty"`
	Act            int64  `json:"act,omitempty"`
	Scene          int64  `json:"scene,omitempty"`
	ChunkType      string `json:"chunk_type,omitempty"` // full_line | phrase | fragment
	Context        string `json:"context,omitempty"`    // soliloquy | dialogue | aside | monologue
	FormalityLevel string `json:"formality_level,omitempty"`
	Meter          string `json:"meter,omitempty"`

	EmotionalTones []string `json:"emotional_tone,omitempty"`
	Themes         []string `json:"themes,omitempty"`
}

// Fragment 入库的引文片段。入库后不可变。
type Fragment struct {
	ID        string    `json:"chunk_id"`
	Text      string    `json:"chunk_text"`
	Embedding []float32 `json:"-"`
	Meta      Metadata  `json:"metadata"`
}

// Candidate 存储层返回的候选：片段 + 与查询向量的距离。
type Candidate struct {
	Fragment *Fragment
	Distance float64
}

// Result 检索结果
type Result struct {
	ID       string   `json:"chunk_id"`
	Text     string   `json:"chunk_text"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}

// RetrieveRequest 检索请求
type RetrieveRequest struct {
	// SemanticQuery 允许为空串：空串按原样送入 embedding，不做拒绝，
	// 结果确定但质量取决于 embedding 模型的行为。
	SemanticQuery string
	Filters       FilterSpec
	// ExcludeIDs 调用方额外排除的片段 id，与会话排除集取并集。
	ExcludeIDs []string
	// MaxResults <= 0 时使用引擎默认值。
	MaxResults int
}
