//go:build !onnx

package main

import (
	"fmt"

	"github.com/seekerworks/searchagent/config"
	"github.com/seekerworks/searchagent/memory"
)

func newONNXEmbedder(config.Config) (memory.Embedder, error) {
	return nil, fmt.Errorf("onnx embedder requires a binary built with the onnx tag")
}
