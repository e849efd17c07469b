// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Help(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--help"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())

	help := out.String()
	assert.Contains(t, help, "loupe-cli")
	assert.Contains(t, help, "analyze")
	assert.Contains(t, help, "themes")
	assert.Contains(t, help, "validate")
}

func TestAnalyzeCmd_RequiresTranscript(t *testing.T) {
	cmd := newAnalyzeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcript")
}

func TestAnalyzeCmd_FlagDefaults(t *testing.T) {
	cmd := newAnalyzeCmd()

	for flag, want := range map[string]string{
		"output":        "",
		"critique":      "false",
		"rewrite-below": "0",
		"gaps":          "false",
		"promote-gaps":  "false",
	} {
		f := cmd.Flags().Lookup(flag)
		require.NotNil(t, f, "missing flag %s", flag)
		assert.Equal(t, want, f.DefValue, "flag %s", flag)
	}
}
