package vulkan

import "sync"

type LockGroup string

const (
	CommandPoolManagement    LockGroup = "command_pool_management"
	DescriptorManagement     LockGroup = "descriptor_management"
	PipelineManagement       LockGroup = "pipeline_management"
	MemoryManagement         LockGroup = "memory_management"
	SwapchainManagement      LockGroup = "swapchain_management"
)

// VulkanLockPool serializes access to objects Vulkan requires to be
// externally synchronized: one mutex per lock group and one per queue family.
type VulkanLockPool struct {
	mu           sync.Mutex
	locks        map[LockGroup]*sync.Mutex
	queueMutexes map[uint32]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) group(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	l, ok := vs.locks[group]
	if !ok {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	return l
}

func (vs *VulkanLockPool) queue(family uint32) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	l, ok := vs.queueMutexes[family]
	if !ok {
		l = &sync.Mutex{}
		vs.queueMutexes[family] = l
	}
	return l
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.group(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// SafeQueueCall runs fn holding the lock of the queue family. Only the
// family lock is held while fn runs.
func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	l := vs.queue(queueFamilyIndex)
	l.Lock()
	defer l.Unlock()
	return fn()
}
