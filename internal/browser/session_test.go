package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kvasirlabs/askpilot/internal/config"
)

func TestAllocatorOptions(t *testing.T) {
	cfg := config.BrowserConfig{
		Headless:          true,
		UserAgent:         "Mozilla/5.0 askpilot",
		WindowWidth:       1440,
		WindowHeight:      900,
		Args:              []string{"no-sandbox", "disable-extensions"},
		NavigationTimeout: 30 * time.Second,
	}

	opts := allocatorOptions(cfg)
	// Defaults, fixed stability flags, window size, user agent, extra args.
	assert.Greater(t, len(opts), len(cfg.Args)+4)

	withoutAgent := cfg
	withoutAgent.UserAgent = ""
	assert.Len(t, allocatorOptions(cfg), len(allocatorOptions(withoutAgent))+1)
}
