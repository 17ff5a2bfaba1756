package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSchemaFlag(t *testing.T, path string) {
	t.Helper()
	t.Setenv("ROWGUARD_DATABASE_URL", "postgres://rowguard@localhost/rowguard_test?sslmode=disable")
	prev := schemaPath
	schemaPath = path
	t.Cleanup(func() { schemaPath = prev })
}

func TestLoadEnv_SchemaFlagOverridesConfig(t *testing.T) {
	t.Setenv("ROWGUARD_SCHEMA_PATH", "/etc/rowguard/from-env.yaml")
	withSchemaFlag(t, "/tmp/from-flag.yaml")

	e, err := loadEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-flag.yaml", e.cfg.Server.SchemaPath)
}

func TestLoadPolicy(t *testing.T) {
	t.Run("bundled example schema", func(t *testing.T) {
		withSchemaFlag(t, filepath.Join("..", "..", "rowguard.yaml"))
		e, err := loadEnv()
		require.NoError(t, err)

		policy, err := e.loadPolicy()
		require.NoError(t, err)
		assert.Len(t, policy.Tables(), 2)
		assert.True(t, policy.Registry().Has("hr-manager"))
		assert.Equal(t, "viewer", policy.DefaultRole())
	})

	t.Run("unknown role in rule", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
name: bad
tables:
  - name: notes
    fields:
      - name: title
    permissions:
      read: {roles: [wizard]}
`), 0o600))
		withSchemaFlag(t, path)
		e, err := loadEnv()
		require.NoError(t, err)

		_, err = e.loadPolicy()
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		withSchemaFlag(t, filepath.Join(t.TempDir(), "absent.yaml"))
		e, err := loadEnv()
		require.NoError(t, err)

		_, err = e.loadPolicy()
		assert.Error(t, err)
	})
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"migrate"}, {"check"},
		{"users", "create"}, {"users", "set-role"},
		{"sessions", "issue"}, {"tokens", "issue"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
