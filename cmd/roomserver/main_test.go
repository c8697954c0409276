package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/roomserver/internal/config"
	"github.com/cory-johannsen/roomserver/internal/storage/memory"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestCheck_WithScripts(t *testing.T) {
	dir := t.TempDir()
	scripts := filepath.Join(dir, "scripts")
	require.NoError(t, os.Mkdir(scripts, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "greeter.lua"),
		[]byte("function initialize(opts) room.log(\"hello\") end\n"), 0o644))
	cfgPath := filepath.Join(dir, "rooms.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("scripting:\n  script_dir: "+scripts+"\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "greeter")
	assert.Contains(t, out, "spinner")
}

func TestCheck_InvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rooms.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("transport:\n  encoding: xml\n"), 0o644))
	_, err := execute(t, "--config", cfgPath, "check")
	assert.Error(t, err)
}

func TestBuildRegistry_BadScriptDir(t *testing.T) {
	_, err := buildRegistry(config.ScriptingConfig{ScriptDir: "/nonexistent", InstructionLimit: 10}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestOpenDirectory_Memory(t *testing.T) {
	d, closeDir, err := openDirectory(config.DirectoryConfig{Backend: "memory"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer closeDir()
	assert.IsType(t, &memory.Directory{}, d)
}

func TestOpenDirectory_RedisUnreachable(t *testing.T) {
	_, _, err := openDirectory(config.DirectoryConfig{
		Backend:  "redis",
		RedisURL: "not-a-url",
		PoolSize: 1,
	}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestConversions(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	rc := roomConfig(cfg.Room)
	assert.Equal(t, cfg.Room.MaxClients, rc.MaxClients)
	assert.Equal(t, cfg.Room.PatchInterval, rc.PatchInterval)
	wc := wsConfig(cfg.Transport)
	assert.Equal(t, cfg.Transport.SendBuffer, wc.SendBuffer)
	assert.Equal(t, cfg.Transport.MaxMessageSize, wc.MaxMessageSize)
}

func TestRefreshInterval(t *testing.T) {
	assert.Equal(t, time.Duration(0), refreshInterval(config.DirectoryConfig{Backend: "memory", TTL: time.Minute}))
	assert.Equal(t, 30*time.Second, refreshInterval(config.DirectoryConfig{Backend: "redis", TTL: time.Minute}))
}
