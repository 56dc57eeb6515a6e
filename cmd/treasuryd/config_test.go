package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "treasuryd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
ledger:
  url: ws://localhost:8546
fee:
  project: 7
  bps: 250
projects:
  - id: 1
  - id: 2
    pairing: "0x00000000000000000000000000000000000000aa"
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, "ws://localhost:8546", cfg.Ledger.URL)
	assert.EqualValues(t, 7, cfg.Fee.Project)
	assert.EqualValues(t, 250, cfg.Fee.Bps)
	assert.Len(t, cfg.Projects, 2)

	// defaults
	assert.NotEmpty(t, cfg.Schedule.RebalanceCron)
	assert.NotEmpty(t, cfg.Schedule.CollectCron)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
ledger:
  url: ws://localhost:8546
projects:
  - id: 1
`)
	t.Setenv("TREASURYD_LEDGER_URL", "ws://other:8546")
	t.Setenv("TREASURYD_SQLITE_PATH", "/tmp/treasury.db")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://other:8546", cfg.Ledger.URL)
	assert.Equal(t, "/tmp/treasury.db", cfg.Database.SQLitePath)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing url", "projects:\n  - id: 1\n"},
		{"no projects", "ledger:\n  url: ws://x\n"},
		{"fee too large", "ledger:\n  url: ws://x\nfee:\n  bps: 10001\nprojects:\n  - id: 1\n"},
		{"bad pairing", "ledger:\n  url: ws://x\nprojects:\n  - id: 1\n    pairing: nonsense\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tc.body))
			require.NoError(t, err)
			assert.Error(t, cfg.validate())
		})
	}
}
