package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

const DefaultBlockSize = core.DefaultDescriptorBlockSize

// Pool owns one LinearPoolAllocator per descriptor shape. It belongs to a
// single frame graph and is not safe for concurrent use.
type Pool struct {
	device     Device
	blockSize  uint32
	allocators map[string]*LinearPoolAllocator
	// keys in creation order, so reset and teardown are deterministic
	order []string
}

type Stats struct {
	Shapes      int
	NativePools int
	Allocations uint32
}

func NewPool(device Device, blockSize uint32) *Pool {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &Pool{
		device:     device,
		blockSize:  blockSize,
		allocators: make(map[string]*LinearPoolAllocator),
	}
}

// Allocate returns a descriptor set written with args, taken from the
// allocator of the args' shape.
func (p *Pool) Allocate(args metadata.ShaderArguments) (Handle, error) {
	if err := validate(args); err != nil {
		return Handle{}, err
	}
	shape := ShapeOf(args)
	key := shape.Key()
	alloc, ok := p.allocators[key]
	if !ok {
		alloc = newLinearPoolAllocator(p.device, shape, SizesFromBindings(args), p.blockSize)
		p.allocators[key] = alloc
		p.order = append(p.order, key)
	}
	return alloc.Allocate(args)
}

// Reset must only be called once every submission using this frame's sets
// has completed.
func (p *Pool) Reset() error {
	for _, key := range p.order {
		if err := p.allocators[key].Reset(); err != nil {
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (p *Pool) Destroy() {
	for _, key := range p.order {
		p.allocators[key].destroy()
	}
	p.allocators = make(map[string]*LinearPoolAllocator)
	p.order = nil
}

func (p *Pool) BlockSize() uint32 {
	return p.blockSize
}

// Allocator returns the allocator serving shape, if one was created.
func (p *Pool) Allocator(shape Shape) (*LinearPoolAllocator, bool) {
	a, ok := p.allocators[shape.Key()]
	return a, ok
}

func (p *Pool) Stats() Stats {
	s := Stats{Shapes: len(p.order)}
	for _, key := range p.order {
		a := p.allocators[key]
		s.NativePools += a.Pools()
		s.Allocations += a.Allocations()
	}
	return s
}

func validate(args metadata.ShaderArguments) error {
	if len(args) == 0 {
		return fmt.Errorf("empty shader arguments: %w", core.ErrShapeMismatch)
	}
	seen := make(map[uint32]struct{}, len(args))
	for _, b := range args {
		if _, dup := seen[b.Slot]; dup {
			return fmt.Errorf("slot %d bound twice: %w", b.Slot, core.ErrShapeMismatch)
		}
		seen[b.Slot] = struct{}{}

		switch b.Type {
		case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer:
			if b.Buffer == 0 || b.Image != 0 {
				return fmt.Errorf("slot %d of type %s needs exactly one buffer: %w", b.Slot, b.Type, core.ErrShapeMismatch)
			}
		case metadata.DescriptorTypeStorageImage:
			if b.Image == 0 || b.Buffer != 0 {
				return fmt.Errorf("slot %d of type %s needs exactly one image: %w", b.Slot, b.Type, core.ErrShapeMismatch)
			}
		default:
			return fmt.Errorf("slot %d has unknown type %s: %w", b.Slot, b.Type, core.ErrShapeMismatch)
		}
	}
	return nil
}
