package metadata

import "fmt"

/** @brief Opaque backend image handle. Zero means no image. */
type ImageHandle uint32

type Format int

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR16G16B16A16Sfloat
	FormatR32G32B32A32Sfloat
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatD32Sfloat
)

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatR16G16B16A16Sfloat:
		return "R16G16B16A16_SFLOAT"
	case FormatR32G32B32A32Sfloat:
		return "R32G32B32A32_SFLOAT"
	case FormatR32G32Sfloat:
		return "R32G32_SFLOAT"
	case FormatR32G32B32Sfloat:
		return "R32G32B32_SFLOAT"
	case FormatD32Sfloat:
		return "D32_SFLOAT"
	}
	return "UNDEFINED"
}

// BytesPerPixel is the texel size of the format, 0 when undefined.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm, FormatD32Sfloat:
		return 4
	case FormatR16G16B16A16Sfloat, FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

/** @brief Whether an image is used as a colour or a depth target. */
type ImageKind int

const (
	ImageKindColor ImageKind = iota
	ImageKindDepth
)

type Resolution struct {
	Width  uint32
	Height uint32
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

/**
 * @brief Describes an image to be allocated by the backend.
 */
type ImageDesc struct {
	/** @brief The extent of the image in pixels. */
	Resolution Resolution
	/** @brief The pixel format. */
	Format Format
	/** @brief Colour or depth usage. */
	Kind ImageKind
}

// Size is the tightly packed byte size of the image.
func (d ImageDesc) Size() uint64 {
	return uint64(d.Resolution.Width) * uint64(d.Resolution.Height) * uint64(d.Format.BytesPerPixel())
}

/** @brief Tracked layout of an image between commands. */
type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthAttachment
	ImageLayoutShaderReadOnly
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutGeneral:
		return "GENERAL"
	case ImageLayoutColorAttachment:
		return "COLOR_ATTACHMENT"
	case ImageLayoutDepthAttachment:
		return "DEPTH_ATTACHMENT"
	case ImageLayoutShaderReadOnly:
		return "SHADER_READ_ONLY"
	case ImageLayoutTransferSrc:
		return "TRANSFER_SRC"
	case ImageLayoutTransferDst:
		return "TRANSFER_DST"
	case ImageLayoutPresentSrc:
		return "PRESENT_SRC"
	}
	return "UNDEFINED"
}

/** @brief Memory access bits used by barriers. */
type Access uint32

const (
	AccessNone            Access = 0
	AccessShaderRead      Access = 1 << 0
	AccessShaderWrite     Access = 1 << 1
	AccessColorAttachment Access = 1 << 2
	AccessDepthAttachment Access = 1 << 3
	AccessTransferRead    Access = 1 << 4
	AccessTransferWrite   Access = 1 << 5
	AccessMemoryRead      Access = 1 << 6
	AccessMemoryWrite     Access = 1 << 7
	AccessVertexAttribute Access = 1 << 8
	AccessIndexRead       Access = 1 << 9
	AccessUniformRead     Access = 1 << 10
)

// LayoutAccess is the access mask work in the given layout is expected to
// have performed.
func LayoutAccess(l ImageLayout) Access {
	switch l {
	case ImageLayoutGeneral:
		return AccessShaderRead | AccessShaderWrite
	case ImageLayoutColorAttachment:
		return AccessColorAttachment
	case ImageLayoutDepthAttachment:
		return AccessDepthAttachment
	case ImageLayoutShaderReadOnly:
		return AccessShaderRead
	case ImageLayoutTransferSrc:
		return AccessTransferRead
	case ImageLayoutTransferDst:
		return AccessTransferWrite
	case ImageLayoutPresentSrc:
		return AccessMemoryRead
	}
	return AccessNone
}
