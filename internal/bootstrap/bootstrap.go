package bootstrap

import (
	"fmt"

	"github.com/cryguy/embedjs/internal/core"
)

// Install runs every setup step against rt in dependency order: slot
// table, Buffer, loader, console. The Go callbacks the snippets reference
// are resolved at call time, so they may be registered before or after.
func Install(rt core.JSRuntime, mode string, sink LogSink) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"handles", func() error { return SetupHandles(rt) }},
		{"buffer", func() error { return SetupBuffer(rt, mode) }},
		{"loader", func() error { return SetupLoader(rt) }},
		{"console", func() error { return SetupConsole(rt, sink) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("bootstrap %s: %w", s.name, err)
		}
	}
	return nil
}
