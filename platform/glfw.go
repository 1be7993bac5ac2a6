// platform/glfw.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package platform

import (
	"fmt"
	gomath "math"
	"runtime"
	"time"

	"github.com/mmp/sweep/camera"
	"github.com/mmp/sweep/layers"
	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/renderer"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// ScrollZoomFactor is the zoom applied for each unit of scroll wheel
// motion.
const ScrollZoomFactor = 1.1

// GLFWPlatform owns the window and OpenGL context and turns mouse input
// into camera gestures.
type GLFWPlatform struct {
	window *glfw.Window
	config *Config
	camera *camera.Camera
	scene  *layers.Scene
	lg     *log.Logger

	dragging               bool
	lastMouseX, lastMouseY float64
}

type Config struct {
	InitialWindowSize     [2]int `yaml:"initial_window_size"`
	InitialWindowPosition [2]int `yaml:"initial_window_position"`

	EnableMSAA  bool   `yaml:"enable_msaa"`
	EnableVSync bool   `yaml:"enable_vsync"`
	Title       string `yaml:"title"`
}

// New creates a window with an OpenGL 4.1 core profile context that is
// current on the calling thread, which must be the main thread.
func New(config *Config, cam *camera.Camera, lg *log.Logger) (*GLFWPlatform, error) {
	lg.Info("Starting GLFW initialization")
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize glfw: %w", err)
	}
	lg.Infof("GLFW: %s", glfw.GetVersionString())

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	vm := glfw.GetPrimaryMonitor().GetVideoMode()
	if config.InitialWindowSize[0] == 0 || config.InitialWindowSize[1] == 0 {
		if runtime.GOOS == "windows" {
			config.InitialWindowSize[0] = vm.Width - 200
			config.InitialWindowSize[1] = vm.Height - 300
		} else {
			config.InitialWindowSize[0] = vm.Width - 150
			config.InitialWindowSize[1] = vm.Height - 150
		}
	}
	// If window position is out of bounds, create the window at (100, 100)
	if config.InitialWindowPosition[0] < 0 || config.InitialWindowPosition[1] < 0 ||
		config.InitialWindowPosition[0] > vm.Width || config.InitialWindowPosition[1] > vm.Height {
		config.InitialWindowPosition = [2]int{100, 100}
	}
	if config.Title == "" {
		config.Title = "sweep"
	}

	// Start with an invisible window so that we can position it first
	glfw.WindowHint(glfw.Visible, 0)
	if config.EnableMSAA {
		glfw.WindowHint(glfw.Samples, 4)
	}
	window, err := glfw.CreateWindow(config.InitialWindowSize[0], config.InitialWindowSize[1], config.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	window.SetPos(config.InitialWindowPosition[0], config.InitialWindowPosition[1])
	window.Show()
	window.MakeContextCurrent()

	g := &GLFWPlatform{
		window: window,
		config: config,
		camera: cam,
		lg:     lg,
	}
	g.installCallbacks()
	g.EnableVSync(config.EnableVSync)

	lg.Info("Finished GLFW initialization")

	return g, nil
}

func (g *GLFWPlatform) EnableVSync(sync bool) {
	if sync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}
}

func (g *GLFWPlatform) SetWindowTitle(text string) {
	g.window.SetTitle(text)
}

func (g *GLFWPlatform) FramebufferSize() [2]int {
	w, h := g.window.GetFramebufferSize()
	return [2]int{w, h}
}

func (g *GLFWPlatform) WindowSize() [2]int {
	w, h := g.window.GetSize()
	return [2]int{w, h}
}

func (g *GLFWPlatform) WindowPosition() [2]int {
	x, y := g.window.GetPos()
	return [2]int{x, y}
}

// pixelScale returns the ratio of framebuffer pixels to window
// coordinates, which is greater than one on high-DPI displays.
func (g *GLFWPlatform) pixelScale() float64 {
	fw, _ := g.window.GetFramebufferSize()
	ww, _ := g.window.GetSize()
	if ww == 0 {
		return 1
	}
	return float64(fw) / float64(ww)
}

func (g *GLFWPlatform) installCallbacks() {
	g.window.SetMouseButtonCallback(g.mouseButtonChange)
	g.window.SetScrollCallback(g.mouseScrollChange)
	g.window.SetCursorPosCallback(g.cursorPosChange)
	g.window.SetFramebufferSizeCallback(g.framebufferSizeChange)
}

func (g *GLFWPlatform) mouseButtonChange(window *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft {
		return
	}
	g.dragging = action == glfw.Press
	g.lastMouseX, g.lastMouseY = window.GetCursorPos()
}

func (g *GLFWPlatform) mouseScrollChange(window *glfw.Window, x, y float64) {
	if y != 0 {
		g.camera.Scale(float32(gomath.Pow(ScrollZoomFactor, y)))
	}
}

func (g *GLFWPlatform) cursorPosChange(window *glfw.Window, x, y float64) {
	if g.dragging {
		s := g.pixelScale()
		g.camera.Drag(float32(s*(x-g.lastMouseX)), float32(s*(y-g.lastMouseY)))
	}
	g.lastMouseX, g.lastMouseY = x, y
}

func (g *GLFWPlatform) framebufferSizeChange(window *glfw.Window, width, height int) {
	g.camera.Resize(width, height)
	if g.scene != nil {
		g.scene.Resize(width, height)
	}
}

// Run prepares the scene and then draws it once per buffer swap until
// the window is closed. The scene is disposed before Run returns.
func (g *GLFWPlatform) Run(scene *layers.Scene, r renderer.Renderer, fps *camera.FPSCounter) error {
	g.scene = scene
	defer scene.Dispose()

	if err := scene.Prepare(r); err != nil {
		return err
	}

	fb := g.FramebufferSize()
	g.framebufferSizeChange(g.window, fb[0], fb[1])

	var stats renderer.RendererStats
	lastStats := time.Now()
	for !g.window.ShouldClose() {
		glfw.PollEvents()

		transform := g.camera.Frame()
		cb := renderer.GetCommandBuffer()
		scene.Draw(transform, cb)
		stats.Merge(r.RenderCommandBuffer(cb))
		renderer.ReturnCommandBuffer(cb)

		g.window.SwapBuffers()

		now := time.Now()
		if fps != nil {
			fps.Tick(now)
		}
		if now.Sub(lastStats) > 10*time.Second {
			g.lg.Info("render stats", "stats", stats, "camera", g.camera.State())
			stats = renderer.RendererStats{}
			lastStats = now
		}
	}

	return nil
}

func (g *GLFWPlatform) Dispose() {
	g.window.Destroy()
	glfw.Terminate()
}
