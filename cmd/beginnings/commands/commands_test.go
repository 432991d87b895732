package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beginnings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCmd(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const validConfig = `
routes:
  "/api/*":
    rate_limit: 10
  "/api/users":
    rate_limit: 5
    methods:
      POST:
        rate_limit: 1

extensions:
  - name: ratelimit
    config:
      rate: 10
  - name: secheaders
`

func TestRoutesCommand(t *testing.T) {
	path := writeConfig(t, validConfig)

	t.Run("table output", func(t *testing.T) {
		out, err := runCmd(newRoutesCmd(), "-c", path)
		require.NoError(t, err)

		assert.Contains(t, out, "/api/users")
		assert.Contains(t, out, "exact")
		assert.Contains(t, out, "/api/*")
		assert.Contains(t, out, "pattern")
		assert.Contains(t, out, "2 entries")
	})

	t.Run("json output", func(t *testing.T) {
		out, err := runCmd(newRoutesCmd(), "-c", path, "--json")
		require.NoError(t, err)

		assert.Contains(t, out, `"pattern": "/api/users"`)
		assert.Contains(t, out, `"specificity"`)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := runCmd(newRoutesCmd(), "-c", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		path := writeConfig(t, validConfig)
		out, err := runCmd(newValidateCmd(), "-c", path)
		require.NoError(t, err)

		assert.Contains(t, out, "extension ratelimit: ok")
		assert.Contains(t, out, "extension secheaders: ok")
		assert.Contains(t, out, "2 extensions validated")
	})

	t.Run("unknown extension fails", func(t *testing.T) {
		path := writeConfig(t, `
extensions:
  - name: nosuch
`)
		out, err := runCmd(newValidateCmd(), "-c", path)
		require.Error(t, err)
		assert.Contains(t, out, "extension nosuch")
	})

	t.Run("rejected extension config fails", func(t *testing.T) {
		path := writeConfig(t, `
extensions:
  - name: auth
    config:
      secret: short
`)
		out, err := runCmd(newValidateCmd(), "-c", path)
		require.Error(t, err)
		assert.Contains(t, out, "extension auth")
	})

	t.Run("unparseable file fails", func(t *testing.T) {
		path := writeConfig(t, "routes: [not: a: mapping")
		_, err := runCmd(newValidateCmd(), "-c", path)
		assert.Error(t, err)
	})
}
