package descriptor

import (
	"strconv"
	"strings"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// Sizes counts the descriptors of each type one set (or one pool) needs.
type Sizes struct {
	UniformBuffers uint32
	StorageBuffers uint32
	StorageImages  uint32
}

// SizesFromBindings folds a binding list into per-type descriptor counts.
func SizesFromBindings(bindings []metadata.Binding) Sizes {
	var s Sizes
	for _, b := range bindings {
		switch b.Type {
		case metadata.DescriptorTypeUniformBuffer:
			s.UniformBuffers++
		case metadata.DescriptorTypeStorageBuffer:
			s.StorageBuffers++
		case metadata.DescriptorTypeStorageImage:
			s.StorageImages++
		}
	}
	return s
}

// Scale multiplies every count by n, giving the budget of a pool holding n sets.
func (s Sizes) Scale(n uint32) Sizes {
	return Sizes{
		UniformBuffers: s.UniformBuffers * n,
		StorageBuffers: s.StorageBuffers * n,
		StorageImages:  s.StorageImages * n,
	}
}

func (s Sizes) Total() uint32 {
	return s.UniformBuffers + s.StorageBuffers + s.StorageImages
}

type ShapeEntry struct {
	Slot uint32
	Type metadata.DescriptorType
}

// Shape is the ordered (slot, type) list of a binding list. Two binding lists
// with equal shapes share one allocator regardless of the bound resources.
type Shape []ShapeEntry

func ShapeOf(bindings []metadata.Binding) Shape {
	shape := make(Shape, len(bindings))
	for i, b := range bindings {
		shape[i] = ShapeEntry{Slot: b.Slot, Type: b.Type}
	}
	return shape
}

// Key is a stable map key for the shape, e.g. "0:uniform|1:storage_image".
func (s Shape) Key() string {
	var sb strings.Builder
	for i, e := range s {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.FormatUint(uint64(e.Slot), 10))
		sb.WriteByte(':')
		sb.WriteString(e.Type.String())
	}
	return sb.String()
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}
