package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/marketplace/internal/version"
)

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())

	assert.Equal(t, "marketplace "+version.String()+"\n", out.String())
}

func TestCommandsRequireValidConfig(t *testing.T) {
	for _, name := range []string{"serve", "migrate", "process", "cleanup"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv("MARKETPLACE_DATABASE__URL", "")
			t.Setenv("MARKETPLACE_AUTH__JWT_SECRET", "")

			root := NewRootCommand()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs([]string{name, "--config", t.TempDir() + "/missing.yaml"})

			err := root.Execute()

			require.Error(t, err)
			assert.Contains(t, err.Error(), "database.url is required")
		})
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.Subset(t, names, []string{"serve", "migrate", "process", "cleanup", "version"})
}
