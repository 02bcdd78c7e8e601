package vulkan

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/submission"
)

// SurfaceFunc creates the presentation surface once the instance exists.
type SurfaceFunc func(instance vk.Instance) (vk.Surface, error)

type VulkanRenderer struct {
	FrameNumber uint64
	context     *VulkanContext

	debug           bool
	swapchainImages uint32
	maxBuffers      int
	// surface is nil for headless rendering.
	surface          SurfaceFunc
	surfaceExtension []string

	pools  *cmdpool.Pool[*VulkanCommandPool, *VulkanCommandBuffer]
	engine *submission.Engine[*VulkanCommandPool, *VulkanCommandBuffer]
}

type Option func(*VulkanRenderer)

// WithValidation enables the Khronos validation layer and the debug
// report callback.
func WithValidation(enabled bool) Option {
	return func(vr *VulkanRenderer) { vr.debug = enabled }
}

// WithSurface renders to a real swapchain. extensions are the instance
// extensions the windowing system needs, for instance the result of
// glfw's GetRequiredInstanceExtensions.
func WithSurface(extensions []string, fn SurfaceFunc) Option {
	return func(vr *VulkanRenderer) {
		vr.surface = fn
		vr.surfaceExtension = extensions
	}
}

// WithSwapchainImages sets the image count of the headless swapchain.
func WithSwapchainImages(n uint32) Option {
	return func(vr *VulkanRenderer) { vr.swapchainImages = n }
}

// WithMaxCommandBuffers bounds the command buffers each worker may hold.
func WithMaxCommandBuffers(n int) Option {
	return func(vr *VulkanRenderer) { vr.maxBuffers = n }
}

func New(opts ...Option) *VulkanRenderer {
	vr := &VulkanRenderer{
		FrameNumber:     0,
		context:         newVulkanContext(),
		swapchainImages: 3,
		maxBuffers:      cmdpool.DefaultMaxBuffers,
	}
	for _, opt := range opts {
		opt(vr)
	}
	vr.pools = cmdpool.New[*VulkanCommandPool, *VulkanCommandBuffer](vr, vr.maxBuffers)
	vr.engine = submission.NewEngine[*VulkanCommandPool, *VulkanCommandBuffer](vr, vr.pools)
	return vr
}

func (vr *VulkanRenderer) Name() string {
	return core.BackendVulkan
}

func (vr *VulkanRenderer) Initialize(appName string, appWidth, appHeight uint32) error {
	if err := glfw.Init(); err != nil {
		err = fmt.Errorf("failed to initialize glfw: %w", err)
		core.LogError(err.Error())
		return err
	}
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil, is a Vulkan loader installed?")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	vr.context.FramebufferWidth = appWidth
	vr.context.FramebufferHeight = appHeight

	if err := vr.createInstance(appName); err != nil {
		return err
	}

	if vr.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vr.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	if vr.surface != nil {
		core.LogDebug("Creating Vulkan surface...")
		surface, err := vr.surface(vr.context.Instance)
		if err != nil {
			err = fmt.Errorf("failed to create platform surface: %w", err)
			core.LogError(err.Error())
			return err
		}
		vr.context.Surface = surface
		core.LogDebug("Vulkan surface created.")
	}

	if err := DeviceCreate(vr.context); err != nil {
		core.LogError("Failed to create device!")
		return err
	}

	sc, err := SwapchainCreate(vr.context, appWidth, appHeight, vr.swapchainImages)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("framegraph"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	var requiredExtensions []string
	if vr.surface != nil {
		requiredExtensions = append(requiredExtensions, "VK_KHR_surface") // Generic surface extension
		requiredExtensions = append(requiredExtensions, vr.surfaceExtension...)
	}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var requiredValidationLayerNames []string
	if vr.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		if vr.validationLayerAvailable("VK_LAYER_KHRONOS_validation") {
			requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}
		} else {
			core.LogWarn("Validation layer VK_LAYER_KHRONOS_validation is missing, continuing without it.")
		}
	}

	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`: %w", VulkanResultString(res), resultError(res))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (vr *VulkanRenderer) validationLayerAvailable(name string) bool {
	core.LogInfo("Validation layers enabled. Enumerating...")

	var availableLayerCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
		return false
	}

	core.LogInfo("Searching for layer: %s...", name)
	for j := range availableLayers {
		availableLayers[j].Deref()
		if fixedString(availableLayers[j].LayerName[:]) == name {
			core.LogInfo("Found.")
			return true
		}
	}
	return false
}

func (vr *VulkanRenderer) Shutdown() error {
	if vr.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

		vr.pools.Destroy()

		if vr.context.Swapchain != nil {
			vr.context.Swapchain.SwapchainDestroy(vr.context)
			vr.context.Swapchain = nil
		}

		// Anything the caller left behind.
		vr.context.framebuffers.Each(func(h uint32, fb *VulkanFramebuffer) {
			core.LogWarn("framebuffer %d still alive at shutdown", h)
			vr.DestroyFramebuffer(metadata.FramebufferHandle(h))
		})
		vr.context.pipelines.Each(func(h uint32, p *VulkanPipeline) {
			vr.DestroyPipeline(metadata.PipelineHandle(h))
		})
		vr.context.renderPasses.Each(func(h uint32, rp *VulkanRenderpass) {
			vr.DestroyRenderPass(metadata.RenderPassHandle(h))
		})
		vr.context.descriptorPools.Each(func(h uint32, p *VulkanDescriptorPool) {
			vr.DestroyDescriptorPool(metadata.DescriptorPoolHandle(h))
		})
		vr.context.images.Each(func(h uint32, img *VulkanImage) {
			core.LogWarn("image %d still alive at shutdown", h)
			vr.DestroyImage(metadata.ImageHandle(h))
		})
		vr.context.buffers.Each(func(h uint32, buf *VulkanBuffer) {
			core.LogWarn("buffer %d still alive at shutdown", h)
			vr.DestroyBuffer(metadata.BufferHandle(h))
		})
		vr.context.fences.Each(func(h uint32, f *VulkanFence) {
			vr.DestroyFence(metadata.FenceHandle(h))
		})
		vr.context.destroyDescriptorSetLayouts()

		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(vr.context)
	}

	if vr.context.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	}

	if vr.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
		vr.context.Instance = nil
	}

	// A window owner keeps glfw alive until its own window is gone.
	if vr.surface == nil {
		glfw.Terminate()
	}
	return nil
}

// Resized recreates the swapchain at the new extent. Callers must not hold
// any swapchain image handle across this call.
func (vr *VulkanRenderer) Resized(width, height uint32) error {
	vr.context.FramebufferWidth = width
	vr.context.FramebufferHeight = height
	core.LogInfo("Vulkan renderer backend->resized: w/h: %d/%d", width, height)

	if vr.context.Swapchain == nil {
		return nil
	}
	sc, err := vr.context.Swapchain.SwapchainRecreate(vr.context, width, height)
	if err != nil {
		vr.context.Swapchain = nil
		return err
	}
	vr.context.Swapchain = sc
	return nil
}

func (vr *VulkanRenderer) WaitIdle() error {
	if res := vk.DeviceWaitIdle(vr.context.Device.LogicalDevice); res != vk.Success {
		return fmt.Errorf("vkDeviceWaitIdle: %w", resultError(res))
	}
	return nil
}

func (vr *VulkanRenderer) SubmitCommands(ctx context.Context, worker cmdpool.WorkerID, pool *descriptor.Pool, list *command.List) error {
	return vr.engine.Submit(ctx, worker, pool, list)
}

func (vr *VulkanRenderer) SwapchainDesc() metadata.ImageDesc {
	if vr.context.Swapchain == nil {
		return metadata.ImageDesc{}
	}
	return vr.context.Swapchain.Desc()
}

func (vr *VulkanRenderer) AcquireNextImage(ctx context.Context) (uint32, metadata.ImageHandle, error) {
	sc := vr.context.Swapchain
	if sc == nil {
		return 0, 0, fmt.Errorf("acquire without a swapchain: %w", core.ErrInvalidHandle)
	}
	index, err := sc.SwapchainAcquireNextImageIndex(ctx, vr.context)
	if err != nil {
		return 0, 0, err
	}
	return index, sc.Images[index], nil
}

// Present moves the image to PresentSrc and queues it for display.
func (vr *VulkanRenderer) Present(index uint32) error {
	sc := vr.context.Swapchain
	if sc == nil || int(index) >= len(sc.Images) {
		return fmt.Errorf("present of image %d: %w", index, core.ErrInvalidHandle)
	}
	handle := sc.Images[index]
	img, err := vr.context.image(handle)
	if err != nil {
		return err
	}

	if old := img.Layout(); old != metadata.ImageLayoutPresentSrc {
		if err := vr.transitionForPresent(img, old); err != nil {
			return err
		}
	}
	vr.FrameNumber++
	return sc.SwapchainPresent(vr.context, index)
}

func (vr *VulkanRenderer) transitionForPresent(img *VulkanImage, old metadata.ImageLayout) error {
	return vr.context.locks.SafeCall(CommandPoolManagement, func() error {
		pool := vr.context.Device.GraphicsCommandPool
		cb, err := AllocateAndBeginSingleUse(vr.context, pool)
		if err != nil {
			return err
		}
		srcAccess, srcStage := vulkanAccess(metadata.LayoutAccess(old), true)
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit),
			OldLayout:           vulkanLayout(old),
			NewLayout:           vk.ImageLayoutPresentSrc,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: img.Aspect,
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		vk.CmdPipelineBarrier(cb.Handle, srcStage, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

		queue, family := vr.context.Device.Queue(metadata.QueueGraphics)
		if err := cb.EndSingleUse(vr.context, pool, queue, family); err != nil {
			return err
		}
		img.SetLayout(metadata.ImageLayoutPresentSrc)
		return nil
	})
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
