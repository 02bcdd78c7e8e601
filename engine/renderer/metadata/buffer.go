package metadata

/** @brief Opaque backend buffer handle. Zero means no buffer. */
type BufferHandle uint32

type BufferUsage uint32

const (
	BufferUsageUniform     BufferUsage = 1 << 0
	BufferUsageStorage     BufferUsage = 1 << 1
	BufferUsageVertex      BufferUsage = 1 << 2
	BufferUsageIndex       BufferUsage = 1 << 3
	BufferUsageTransferSrc BufferUsage = 1 << 4
	BufferUsageTransferDst BufferUsage = 1 << 5
)

/**
 * @brief Describes a buffer to be allocated by the backend.
 */
type BufferDesc struct {
	/** @brief Size in bytes. */
	Size uint64
	/** @brief How the buffer will be bound. */
	Usage BufferUsage
	/** @brief Host visible buffers can be mapped and written from the CPU. */
	HostVisible bool
}
