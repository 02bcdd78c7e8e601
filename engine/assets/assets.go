package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/framegraph/engine/assets/loaders"
	"github.com/spaghettifunk/framegraph/engine/core"
)

// ShaderExt is the extension of compiled shader modules.
const ShaderExt = ".spv"

type AssetInfo struct {
	Name       string
	Path       string
	LastLoaded time.Time
}

// ShaderLibrary indexes the compiled shaders under a directory and serves
// their words by name. A shader's name is its path relative to the
// directory without the extension, so shaders/blur.comp.spv is "blur.comp".
// With watching on, a changed file drops its cached code and fires
// EVENT_CODE_SHADER_RELOADED.
type ShaderLibrary struct {
	dir    string
	loader Loader

	mutex  sync.RWMutex
	assets map[string]*AssetInfo
	code   map[string][]uint32

	fsnotify *fsnotify.Watcher
	isClosed bool
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewShaderLibrary(dir string) *ShaderLibrary {
	return &ShaderLibrary{
		dir:    dir,
		loader: &loaders.BinaryLoader{},
		assets: make(map[string]*AssetInfo),
		code:   make(map[string][]uint32),
	}
}

// Initialize indexes every shader under the directory and, when watch is
// set, starts following changes to it.
func (sl *ShaderLibrary) Initialize(watch bool) error {
	if err := sl.scan(); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("shader library indexed %d shaders under %s", len(sl.Names()), sl.dir)
	if !watch {
		return nil
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		err = fmt.Errorf("failed to create shader watcher: %w", err)
		core.LogError(err.Error())
		return err
	}
	sl.fsnotify = fsWatch
	sl.done = make(chan struct{})
	if err := sl.watchRecursive(sl.dir); err != nil {
		fsWatch.Close()
		sl.fsnotify = nil
		return err
	}
	sl.wg.Add(1)
	go sl.start()
	return nil
}

func (sl *ShaderLibrary) scan() error {
	return filepath.WalkDir(sl.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			sl.index(path)
		}
		return nil
	})
}

// watchRecursive adds the directory and everything below it to the watch list.
func (sl *ShaderLibrary) watchRecursive(path string) error {
	if sl.isClosed {
		return errors.New("shader watcher already closed")
	}
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return sl.fsnotify.Add(walkPath)
		}
		return nil
	})
}

func (sl *ShaderLibrary) start() {
	defer sl.wg.Done()
	for {
		select {
		case e, ok := <-sl.fsnotify.Events:
			if !ok {
				return
			}
			sl.handleEvent(e)
		case err, ok := <-sl.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)
		case <-sl.done:
			return
		}
	}
}

func (sl *ShaderLibrary) handleEvent(e fsnotify.Event) {
	if e.Has(fsnotify.Create) {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := sl.watchRecursive(e.Name); err != nil {
				core.LogWarn("failed to watch %s: %s", e.Name, err)
			}
			return
		}
	}
	switch {
	case e.Has(fsnotify.Create) || e.Has(fsnotify.Write):
		if name, ok := sl.index(e.Name); ok {
			sl.reloaded(name, e.Name)
		}
	case e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename):
		sl.removeAsset(e.Name)
	}
}

// index registers path when it is a shader and drops its cached code.
func (sl *ShaderLibrary) index(path string) (string, bool) {
	name, ok := sl.shaderName(path)
	if !ok {
		return "", false
	}
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	sl.assets[name] = &AssetInfo{Name: name, Path: path}
	delete(sl.code, name)
	return name, true
}

func (sl *ShaderLibrary) removeAsset(path string) {
	name, ok := sl.shaderName(path)
	if !ok {
		return
	}
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	delete(sl.assets, name)
	delete(sl.code, name)
}

func (sl *ShaderLibrary) shaderName(path string) (string, bool) {
	if filepath.Ext(path) != ShaderExt {
		return "", false
	}
	rel, err := filepath.Rel(sl.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, ShaderExt)), true
}

func (sl *ShaderLibrary) reloaded(name, path string) {
	core.LogInfo("shader %q changed on disk", name)
	data := core.EventContext{}
	data.Data.C[0] = name
	data.Data.C[1] = path
	core.EventFire(core.EVENT_CODE_SHADER_RELOADED, sl, data)
}

// Code returns the words of the named shader, reading the file on first use.
func (sl *ShaderLibrary) Code(name string) ([]uint32, error) {
	sl.mutex.RLock()
	code, cached := sl.code[name]
	asset, known := sl.assets[name]
	sl.mutex.RUnlock()
	if cached {
		return code, nil
	}
	if !known {
		return nil, fmt.Errorf("shader %q not found under %s: %w", name, sl.dir, core.ErrShaderRead)
	}

	code, err := sl.loader.Load(asset.Path)
	if err != nil {
		return nil, err
	}
	sl.mutex.Lock()
	sl.code[name] = code
	asset.LastLoaded = time.Now()
	sl.mutex.Unlock()
	return code, nil
}

// Names lists the indexed shaders, sorted.
func (sl *ShaderLibrary) Names() []string {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	names := make([]string, 0, len(sl.assets))
	for name := range sl.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown stops the watcher, if any.
func (sl *ShaderLibrary) Shutdown() error {
	if sl.fsnotify == nil || sl.isClosed {
		return nil
	}
	sl.isClosed = true
	close(sl.done)
	err := sl.fsnotify.Close()
	sl.wg.Wait()
	return err
}
