package metadata

type RenderPassHandle uint32

type FramebufferHandle uint32

/**
 * @brief Describes a single-subpass render pass.
 */
type RenderPassDesc struct {
	/** @brief Formats of the colour attachments, in attachment order. */
	ColorFormats []Format
	/** @brief Depth attachment format, or FormatUndefined for none. */
	DepthFormat Format
	/** @brief Clear colour applied when the pass begins. */
	ClearColor [4]float32
	/** @brief Depth clear value. */
	ClearDepth float32
	/** @brief Layout colour attachments end up in. */
	FinalLayout ImageLayout
}

// AttachmentCount counts colour attachments plus the optional depth attachment.
func (d RenderPassDesc) AttachmentCount() int {
	n := len(d.ColorFormats)
	if d.DepthFormat != FormatUndefined {
		n++
	}
	return n
}
