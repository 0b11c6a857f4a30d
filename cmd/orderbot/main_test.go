package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
exchange:
  driver: paper
execution:
  confirm: true
database:
  enabled: true
  in_memory: true
logging:
  level: error
  encoding: json
  output_paths: ["stderr"]
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))
	return path
}

func runCLI(t *testing.T, input string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-config", writeConfig(t)}, args...), strings.NewReader(input), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_MarketConfirmed(t *testing.T) {
	code, out, _ := runCLI(t, "y\n", "market", "-symbol", "btcusdt", "-side", "buy", "-qty", "0.01")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "BUY 0.01 BTCUSDT at MARKET")
	assert.Contains(t, out, "all 1 legs completed")
}

func TestRun_DeclinedIsNoOp(t *testing.T) {
	code, out, _ := runCLI(t, "n\n", "grid", "-symbol", "BTCUSDT", "-lower", "100", "-upper", "200", "-levels", "4", "-qty", "1")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "no action taken")
	assert.NotContains(t, out, "legs completed")
}

func TestRun_YesSkipsPrompt(t *testing.T) {
	code, out, _ := runCLI(t, "", "-yes", "twap", "-symbol", "ETHUSDT", "-side", "SELL", "-total", "2", "-chunks", "1", "-interval", "1s")
	assert.Equal(t, exitOK, code)
	assert.NotContains(t, out, "Proceed?")
	assert.Contains(t, out, "twap 1/1")
}

func TestRun_InvalidParametersExitOne(t *testing.T) {
	code, _, errOut := runCLI(t, "", "-yes", "twap", "-symbol", "ETHUSDT", "-side", "SELL", "-total", "2", "-chunks", "0")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "参数错误")

	code, _, _ = runCLI(t, "", "-yes", "market", "-symbol", "BTCUSDT", "-side", "HOLD", "-qty", "1")
	assert.Equal(t, exitFailure, code)

	code, _, _ = runCLI(t, "", "-yes", "limit", "-symbol", "BTCUSDT", "-side", "BUY", "-qty", "abc")
	assert.Equal(t, exitFailure, code)
}

func TestRun_UnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"hedge"}, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "未知命令")
}

func TestRun_CancelUnknownOrderFails(t *testing.T) {
	code, _, errOut := runCLI(t, "", "cancel", "-symbol", "BTCUSDT", "-id", "42")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "执行失败")
}

func TestRun_EventsRejectsUnknownType(t *testing.T) {
	code, _, _ := runCLI(t, "", "events", "-type", "nope")
	assert.Equal(t, exitFailure, code)

	code, out, _ := runCLI(t, "", "events")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "[]")
}
