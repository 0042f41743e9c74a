package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/remoteui/internal/auth"
	"github.com/thruflo/remoteui/internal/config"
)

// fixedPrompter answers prompts from a list.
func fixedPrompter(answers ...string) auth.Prompter {
	return func(string) (string, error) {
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
}

func runHashPasswordWith(t *testing.T, configPath string, answers ...string) (string, error) {
	t.Helper()
	passwordPrompter = fixedPrompter(answers...)
	hashConfigPath = configPath
	t.Cleanup(func() {
		passwordPrompter = nil
		hashConfigPath = ""
	})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	err := runHashPassword(cmd, nil)
	return out.String(), err
}

func TestHashPasswordPrintsHash(t *testing.T) {
	out, err := runHashPasswordWith(t, "", "hunter2", "hunter2")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	require.NoError(t, auth.CheckHash(hash))
	ok, err := auth.VerifyPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPasswordMismatch(t *testing.T) {
	_, err := runHashPasswordWith(t, "", "one", "two")
	assert.ErrorIs(t, err, auth.ErrPasswordMismatch)
}

func TestHashPasswordEmpty(t *testing.T) {
	_, err := runHashPasswordWith(t, "", "")
	assert.ErrorIs(t, err, auth.ErrEmptyPassword)
}

func TestHashPasswordWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remoteui.yaml")

	out, err := runHashPasswordWith(t, path, "secret", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	ok, err := auth.VerifyPassword("secret", cfg.Server.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, config.DefaultServerPort, cfg.Server.Port)
}
