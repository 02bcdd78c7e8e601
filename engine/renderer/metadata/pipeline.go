package metadata

type PipelineHandle uint32

type PipelineKind int

const (
	PipelineKindGraphics PipelineKind = iota
	PipelineKindCompute
)

type ShaderStageKind int

const (
	ShaderStageVertex ShaderStageKind = iota
	ShaderStageFragment
	ShaderStageCompute
)

func (s ShaderStageKind) String() string {
	switch s {
	case ShaderStageVertex:
		return "vert"
	case ShaderStageFragment:
		return "frag"
	case ShaderStageCompute:
		return "comp"
	}
	return "unknown"
}

/**
 * @brief A compiled shader stage.
 */
type ShaderStage struct {
	Kind ShaderStageKind
	/** @brief Shader name, used to rebuild pipelines on reload. */
	Name string
	/** @brief SPIR-V words. */
	Code []uint32
	/** @brief Entry point, "main" when empty. */
	Entry string
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

/**
 * @brief The vertex layout of a graphics pipeline.
 */
type VertexInput struct {
	Stride     uint32
	Attributes []VertexAttribute
}

type CullMode int

const (
	CullModeBack CullMode = iota
	CullModeNone
	CullModeFront
)

/**
 * @brief Everything needed to build a graphics or compute pipeline.
 */
type PipelineState struct {
	Name   string
	Kind   PipelineKind
	Stages []ShaderStage
	/** @brief Descriptor set shape; only Slot and Type are read. */
	Layout ShaderArguments
	/** @brief Graphics only. */
	VertexInput VertexInput
	/** @brief Graphics only: the render pass the pipeline draws into. */
	RenderPass RenderPassHandle
	/** @brief Graphics only: viewport extent. */
	Resolution Resolution
	CullMode   CullMode
	DepthTest  bool
}
