//go:build onnx

package main

import (
	"github.com/seekerworks/searchagent/config"
	"github.com/seekerworks/searchagent/memory"
	embonnx "github.com/seekerworks/searchagent/memory/embedder/onnx"
)

func newONNXEmbedder(cfg config.Config) (memory.Embedder, error) {
	return embonnx.New(embonnx.Config{
		ModelPath:     cfg.Memory.ONNX.ModelPath,
		TokenizerPath: cfg.Memory.ONNX.TokenizerPath,
		LibraryPath:   cfg.Memory.ONNX.LibraryPath,
		Dimensions:    cfg.Memory.Dimensions,
	})
}
