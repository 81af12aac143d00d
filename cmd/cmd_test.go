package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvasirlabs/askpilot/internal/config"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "askpilot", root.Use)
	assert.Equal(t, Version, root.Version)

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "ask")
	assert.Contains(t, names, "runs")
}

func TestAskCommandRequiresQuery(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"ask"})
	err := root.Execute()
	require.Error(t, err)
}

func TestAskFlagsOverrideConfigSections(t *testing.T) {
	viper.Reset()
	t.Cleanup(func() { viper.Reset() })
	config.SetDefaults(viper.GetViper())

	askCmd := newAskCmd()
	require.NoError(t, askCmd.Flags().Set("target", "https://answers.example.com"))
	require.NoError(t, askCmd.Flags().Set("credentials", "alt-cookies.json"))
	require.NoError(t, askCmd.PreRunE(askCmd, []string{"hello"}))

	// A flag bound under a top-level key that shadows a config section only
	// breaks unmarshaling on some map orderings, so one pass is not enough.
	for i := 0; i < 50; i++ {
		cfg, err := config.NewFromViper(viper.GetViper())
		require.NoError(t, err)
		assert.Equal(t, "https://answers.example.com", cfg.Target.URL)
		assert.Equal(t, "alt-cookies.json", cfg.Auth.CredentialFile)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly ten", truncate("exactly ten", 11))
	long := "a query that keeps going well past the cutoff point for display"
	got := truncate(long, 20)
	assert.Len(t, got, 20)
	assert.Equal(t, "...", got[17:])

	// Widths at or below the ellipsis length degrade to a hard cut.
	assert.Equal(t, "a q", truncate(long, 3))
	assert.Equal(t, "", truncate(long, 0))
}
