//go:build v8

package embedjs

import (
	"github.com/cryguy/embedjs/internal/core"
	"github.com/cryguy/embedjs/internal/v8engine"
)

// engineName is reported in logs and by the process built-in.
const engineName = "v8"

func newRuntime(cfg core.EngineConfig) (core.JSRuntime, error) {
	return v8engine.New(cfg)
}
