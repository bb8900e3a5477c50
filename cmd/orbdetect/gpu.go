//go:build !nogpu

package main

import (
	"log"

	"github.com/gogpu/orb/backend/native"
	"github.com/gogpu/orb/gpucore"
)

func openGPU() (gpucore.Device, error) {
	dev, err := native.Open()
	if err != nil {
		return nil, err
	}
	log.Printf("Using GPU %s", dev.Adapter())
	return dev, nil
}
