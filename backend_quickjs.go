//go:build !v8

package embedjs

import (
	"github.com/cryguy/embedjs/internal/core"
	"github.com/cryguy/embedjs/internal/quickjs"
)

// engineName is reported in logs and by the process built-in.
const engineName = "quickjs"

func newRuntime(cfg core.EngineConfig) (core.JSRuntime, error) {
	return quickjs.New(cfg)
}
