//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the demo on the backend named in framegraph.toml.
func (Run) Demo() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run demo...")
	_, err := executeCmd("go", withArgs("run", ".", "-config", "framegraph.toml"), withStream())
	return err
}

// Runs the demo on the null backend; no GPU or shaders needed.
func (Run) Null() error {
	_, err := executeCmd("go", withArgs("run", ".", "-config", "framegraph.toml", "-backend", "null"), withStream())
	return err
}
