//go:build mage

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

const (
	shaderSrcDir = "testbed/shaders"
	shaderOutDir = "assets/shaders"
)

type Build mg.Namespace

// Compiles every GLSL compute shader of the demo to SPIR-V with glslc.
func (Build) Shaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderSrcDir, "*.comp"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return err
	}
	for _, src := range sources {
		out := filepath.Join(shaderOutDir, strings.TrimPrefix(src, shaderSrcDir+string(filepath.Separator))+".spv")
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the demo binary.
func (Build) Binary() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/framegraph", "."), withStream())
	return err
}
