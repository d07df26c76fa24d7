package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/focusrelay/internal/config"
	"github.com/neboloop/focusrelay/internal/logging"
	"github.com/neboloop/focusrelay/internal/textservice"
)

func resetFlags() {
	cfgFile, logLevel, logFormat = "", "", ""
	quiet = false
	logging.SetQuiet(false)
}

func isolateDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FOCUSRELAY_DATA_DIR", dir)
	return dir
}

func startService(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	svc := textservice.New(textservice.Options{VaultPath: t.TempDir(), PushRate: 100, PushBurst: 100})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestPushReportsRecipients(t *testing.T) {
	t.Cleanup(resetFlags)
	isolateDataDir(t)
	addr := startService(t)

	c := config.DefaultConfig()
	c.Service.Addr = addr

	var out bytes.Buffer
	root := SetupRootCmd(&c)
	root.SetOut(&out)
	root.SetArgs([]string{"push", "hello", "world"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "sent to 0 relay(s)\n", out.String())
}

func TestConfigFlagOverlaysDefaults(t *testing.T) {
	t.Cleanup(resetFlags)
	path := filepath.Join(t.TempDir(), "focusrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  url: ws://127.0.0.1:7777\n"), 0o644))

	c := config.DefaultConfig()
	ServerConfig = &c
	cfgFile, logLevel, logFormat = path, "debug", "json"
	require.NoError(t, loadConfig())

	assert.Equal(t, "ws://127.0.0.1:7777", ServerConfig.Relay.URL)
	assert.Equal(t, "debug", ServerConfig.Log.Level)
	assert.Equal(t, "json", ServerConfig.Log.Format)
	assert.Equal(t, config.DefaultConfig().Service.Addr, ServerConfig.Service.Addr)
}

func TestUserConfigFromDataDir(t *testing.T) {
	t.Cleanup(resetFlags)
	dir := isolateDataDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("service:\n  push_burst: 3\n"), 0o644))

	c := config.DefaultConfig()
	ServerConfig = &c
	require.NoError(t, loadConfig())
	assert.Equal(t, 3, ServerConfig.Service.PushBurst)
}

func TestConfigFlagRejectsInvalidFile(t *testing.T) {
	t.Cleanup(resetFlags)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  url: http://nope\n"), 0o644))

	c := config.DefaultConfig()
	ServerConfig = &c
	cfgFile = path
	assert.Error(t, loadConfig())
}

func TestDoctorChecks(t *testing.T) {
	t.Cleanup(resetFlags)
	addr := startService(t)

	c := config.DefaultConfig()
	c.Service.Addr = addr
	c.Service.VaultPath = t.TempDir()
	c.Browser.CDPURL = "127.0.0.1:1"

	results := runChecks(context.Background(), c)
	byName := map[string]checkResult{}
	for _, r := range results {
		byName[r.name] = r
	}
	assert.Equal(t, "ok", byName["Config"].status)
	assert.Equal(t, "ok", byName["Vault"].status)
	assert.Equal(t, "error", byName["Chrome"].status)
	assert.Equal(t, "ok", byName["Text Service"].status)

	var out bytes.Buffer
	assert.Equal(t, 1, printResults(&out, results))
	assert.Equal(t, 4, strings.Count(out.String(), "\n")-2)
}

func TestDoctorWarnsWhenServiceDown(t *testing.T) {
	c := config.DefaultConfig()
	c.Service.Addr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.Equal(t, "warn", checkService(ctx, c).status)
}

func TestQuietFlagSilencesLogs(t *testing.T) {
	t.Cleanup(resetFlags)
	isolateDataDir(t)

	c := config.DefaultConfig()
	ServerConfig = &c
	quiet = true
	require.NoError(t, loadConfig())
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelError))

	quiet = false
	require.NoError(t, loadConfig())
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelError))
}

func TestBrowserConfigCarriesTimeouts(t *testing.T) {
	c := config.DefaultConfig()
	c.Browser.ProbeTimeout = 250 * time.Millisecond
	c.Relay.InsertTimeout = 2 * time.Second

	bcfg := browserConfig(c)
	assert.Equal(t, 250*time.Millisecond, bcfg.ProbeTimeout)
	assert.Equal(t, 2*time.Second, bcfg.InsertTimeout)
	assert.False(t, bcfg.Remote())
}
