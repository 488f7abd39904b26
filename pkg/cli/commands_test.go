package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/depreg/pkg/dependencies"
)

func TestCheck(t *testing.T) {
	c := newTestCLI(t)

	c.runJSON(t, "register", "-key", "Contoso.Runtime", "-version", "2.1.0.0", "-display-name", "Contoso Runtime")

	t.Run("in range", func(t *testing.T) {
		got := c.runJSON(t, "check", "-key", "contoso.runtime", "-min", "2.0", "-max", "3.0")
		assert.Equal(t, true, got["found"])
		assert.Equal(t, true, got["in_range"])
		assert.Equal(t, "2.1.0.0", got["version"])
		assert.Equal(t, "Contoso Runtime", got["display_name"])
		assert.NotContains(t, got, "records")
	})

	t.Run("out of range records the provider", func(t *testing.T) {
		got := c.runJSON(t, "check", "-key", "Contoso.Runtime", "-min", "3.0")
		assert.Equal(t, true, got["found"])
		assert.Equal(t, false, got["in_range"])

		recs, ok := got["records"].([]interface{})
		require.True(t, ok)
		require.Len(t, recs, 1)
		rec := recs[0].(map[string]interface{})
		assert.Equal(t, "Contoso.Runtime", rec["key"])
		assert.Equal(t, "Contoso Runtime", rec["name"])
	})

	t.Run("not found succeeds", func(t *testing.T) {
		out, err := c.run("check", "-key", "Missing.Provider")
		require.NoError(t, err)
		assert.JSONEq(t, `{"found": false}`, out)
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := c.run("check", "-key", "Contoso.Runtime", "-min", "two")
		require.Error(t, err)
		assert.True(t, dependencies.IsInvalidFormat(err))
	})

	t.Run("invalid hive", func(t *testing.T) {
		_, err := c.run("check", "-key", "Contoso.Runtime", "-hive", "HKCR")
		assert.Error(t, err)
	})
}

func TestRegister_InvalidVersion(t *testing.T) {
	c := newTestCLI(t)

	_, err := c.run("register", "-key", "p", "-version", "1.x")
	require.Error(t, err)
	assert.True(t, dependencies.IsInvalidFormat(err))

	_, err = c.run("register", "-key", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-version is required")
}

func TestHivesAreIndependent(t *testing.T) {
	c := newTestCLI(t)

	got := c.runJSON(t, "register", "-key", "p", "-version", "1.0", "-hive", "user")
	assert.Equal(t, "registered", got["status"])
	assert.Equal(t, "user", got["hive"])

	out, err := c.run("check", "-key", "p")
	require.NoError(t, err)
	assert.JSONEq(t, `{"found": false}`, out)

	got = c.runJSON(t, "check", "-key", "p", "-hive", "HKCU")
	assert.Equal(t, true, got["found"])
}

func TestCheckDependents(t *testing.T) {
	c := newTestCLI(t)

	c.runJSON(t, "register", "-key", "Runtime", "-version", "1.0")
	c.runJSON(t, "register", "-key", "App.One", "-version", "1.0", "-display-name", "Application One")
	c.runJSON(t, "register-dependent", "-key", "Runtime", "-dependent", "App.One", "-min", "1.0")
	c.runJSON(t, "register-dependent", "-key", "Runtime", "-dependent", "App.Two")
	c.runJSON(t, "register-dependent", "-key", "Runtime", "-dependent", "App.Three", "-attributes", "1")

	t.Run("all blocking dependents", func(t *testing.T) {
		got := c.runJSON(t, "check-dependents", "-key", "Runtime")
		assert.Equal(t, float64(2), got["count"])

		deps := got["dependents"].([]interface{})
		require.Len(t, deps, 2)
		names := map[string]interface{}{}
		for _, d := range deps {
			rec := d.(map[string]interface{})
			names[rec["key"].(string)] = rec["name"]
		}
		assert.Equal(t, "Application One", names["App.One"])
		assert.Contains(t, names, "App.Two")
	})

	t.Run("ignored keys", func(t *testing.T) {
		got := c.runJSON(t, "check-dependents", "-key", "Runtime", "-ignore", "app.one", "-ignore", "APP.TWO")
		assert.Equal(t, float64(0), got["count"])
		assert.Empty(t, got["dependents"])
	})

	t.Run("unregister dependent", func(t *testing.T) {
		got := c.runJSON(t, "unregister-dependent", "-key", "Runtime", "-dependent", "App.Two")
		assert.Equal(t, "unregistered", got["status"])
		assert.Equal(t, "App.Two", got["dependent"])

		got = c.runJSON(t, "check-dependents", "-key", "Runtime")
		assert.Equal(t, float64(1), got["count"])
	})

	t.Run("register dependent with bad bounds", func(t *testing.T) {
		_, err := c.run("register-dependent", "-key", "Runtime", "-dependent", "App.Four", "-max", "9.9.9.9.9")
		require.Error(t, err)
		assert.True(t, dependencies.IsInvalidFormat(err))
	})
}

func TestUnregister(t *testing.T) {
	c := newTestCLI(t)

	c.runJSON(t, "register", "-key", "p", "-version", "1.0")
	got := c.runJSON(t, "unregister", "-key", "P")
	assert.Equal(t, "unregistered", got["status"])

	_, err := c.run("unregister", "-key", "p")
	require.Error(t, err)
	assert.True(t, dependencies.IsNotFound(err))

	_, err = c.run("unregister-dependent", "-key", "p", "-dependent", "d")
	require.Error(t, err)
	assert.ErrorIs(t, err, dependencies.ErrDependentNotFound)
}

func TestConfigFileFlag(t *testing.T) {
	c := newTestCLI(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "depreg.yaml")
	dbPath := filepath.Join(dir, "registry.db")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  type: sqlite\n  sqlite_path: "+dbPath+"\n"), 0o600))
	t.Setenv("DEPREG_STORAGE_TYPE", "")

	c.runJSON(t, "register", "-config", path, "-key", "p", "-version", "4.2")
	got := c.runJSON(t, "check", "-config", path, "-key", "p", "-min", "4")
	assert.Equal(t, true, got["in_range"])

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)

	_, err = c.run("check", "-config", filepath.Join(dir, "absent.yaml"), "-key", "p")
	assert.Error(t, err)
}

func TestAuditEnabled(t *testing.T) {
	c := newTestCLI(t)
	auditDir := t.TempDir()
	t.Setenv("DEPREG_AUDIT_ENABLED", "true")
	t.Setenv("DEPREG_AUDIT_DIR", auditDir)

	c.runJSON(t, "register", "-key", "p", "-version", "1.0")
	_, err := c.run("unregister", "-key", "missing")
	require.Error(t, err)

	data, err := os.ReadFile(filepath.Join(auditDir, "audit.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"status":"success"`)
	assert.Contains(t, lines[1], `"status":"failure"`)
}
