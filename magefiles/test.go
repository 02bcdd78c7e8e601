//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs the tests of the frame graph and submission packages only.
func (Test) Graph() error {
	_, err := executeCmd("go", withArgs("test", "./engine/renderer/framegraph/...", "./engine/renderer/submission/...", "./engine/renderer/descriptor/..."), withStream())
	return err
}
