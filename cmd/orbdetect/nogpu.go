//go:build nogpu

package main

import (
	"errors"

	"github.com/gogpu/orb/gpucore"
)

func openGPU() (gpucore.Device, error) {
	return nil, errors.New("built with nogpu")
}
