package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"DOMAIN_SOURCE", "DOMAINS_FILE", "RULE_SINKS", "DNS_TIMEOUT", "DNS_RATE_LIMIT", "BATCH_SIZE", "METRICS_ADDR", "NOTIFICATION_TIMEOUT", "DISCORD_WEBHOOK_URL"} {
		t.Setenv(key, "")
	}

	cmd := NewRootCommand("1.2.3", WithValidator(testValidator()), WithRegistry(prometheus.NewRegistry()))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "rulegen 1.2.3\n", out)
}

func TestCheckCommand(t *testing.T) {
	out, err := executeCommand(t, "check", "example.com", "nonexistent.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com\tvalid\nnonexistent.com\tinvalid\tdomain does not exist\n", out)
}

func TestCheckCommand_RequiresNames(t *testing.T) {
	_, err := executeCommand(t, "check")
	assert.Error(t, err)
}

func TestRunCommand_FileToStdout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.csv")
	require.NoError(t, os.WriteFile(path, []byte("3,random.example.com\n"), 0o644))

	out, err := executeCommand(t, "run", "--source", "FILE", "--domains-file", path, "--sinks", "stdout")
	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(out), `"project_id":"3"`)
	assert.Contains(t, out, `"regexp":".*(random\\.example\\.com)$"`)
}

func TestRunCommand_InvalidConfiguration(t *testing.T) {
	_, err := executeCommand(t, "run", "--source", "file", "--sinks", "stdout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Domains file is required")
}

func TestRunCommand_FlagOutOfRange(t *testing.T) {
	_, err := executeCommand(t, "run", "--dns-timeout", "0", "--source", "file", "--domains-file", "x.csv", "--sinks", "stdout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DNS timeout must be between 1 and 60 seconds")
}
