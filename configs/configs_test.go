package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gregriff/lanmic/internal/codec"
	"github.com/gregriff/lanmic/internal/receiver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigWritesDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lanmic.toml")
	v := viper.New()
	require.NoError(t, InitConfig(v, file))

	written, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, defaultConfigFile, written)
	assert.Equal(t, 48750, v.GetInt("send.port"))
	assert.Equal(t, "stable", v.GetString("receive.jitter-mode"))
}

func TestInitConfigLayersFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lanmic.toml")
	require.NoError(t, os.WriteFile(file, []byte("[send]\nmode = \"pcm\"\n"), 0o600))
	t.Setenv("LANMIC_RECEIVE_JITTER_MODE", "low-latency")

	v := viper.New()
	require.NoError(t, InitConfig(v, file))

	assert.Equal(t, "pcm", v.GetString("send.mode"))
	assert.Equal(t, "standard", v.GetString("send.quality"), "keys missing from the file keep their defaults")
	assert.Equal(t, "low-latency", v.GetString("receive.jitter-mode"))
}

func TestPersistTargetToConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lanmic.toml")
	require.NoError(t, InitConfig(viper.New(), file))
	require.NoError(t, PersistTargetToConfig(file, "studio.local"))

	v := viper.New()
	require.NoError(t, InitConfig(v, file))
	assert.Equal(t, "studio.local", v.GetString("send.target"))
	assert.Equal(t, "opus", v.GetString("send.mode"))

	assert.Error(t, PersistTargetToConfig(filepath.Join(t.TempDir(), "missing.toml"), "x"))
}

func TestLoadSend(t *testing.T) {
	v := viper.New()
	require.NoError(t, InitConfig(v, filepath.Join(t.TempDir(), "lanmic.toml")))

	_, err := LoadSend(v, "")
	assert.Error(t, err, "no target anywhere")

	v.Set("send.quality", "high")
	send, err := LoadSend(v, "studio.local")
	require.NoError(t, err)
	assert.Equal(t, "studio.local:48750", send.Sender.Target)
	assert.Equal(t, codec.ModeOpus, send.Sender.Mode)
	assert.Equal(t, codec.QualityHigh, send.Quality)
	assert.Equal(t, 1.0, send.Sender.Gain)
	assert.True(t, send.Sender.Processing)

	v.Set("send.target", "10.0.0.7:5000")
	send, err = LoadSend(v, "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7:5000", send.Sender.Target)

	v.Set("send.mode", "flac")
	_, err = LoadSend(v, "x")
	assert.Error(t, err)
}

func TestLoadReceive(t *testing.T) {
	v := viper.New()
	require.NoError(t, InitConfig(v, filepath.Join(t.TempDir(), "lanmic.toml")))

	recv, err := LoadReceive(v)
	require.NoError(t, err)
	assert.Equal(t, ":48750", recv.Receiver.Listen)
	assert.Equal(t, receiver.Stable, recv.Receiver.JitterMode)
	assert.Equal(t, time.Second, recv.Receiver.ForceStart)
	assert.Equal(t, -45.0, recv.Receiver.VadFloorDb)
	assert.True(t, recv.History)
	assert.NotEmpty(t, recv.HistoryPath)

	v.Set("receive.force-start", "30s")
	v.Set("history.path", "/tmp/h.sqlite")
	recv, err = LoadReceive(v)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, recv.Receiver.ForceStart)
	assert.Equal(t, "/tmp/h.sqlite", recv.HistoryPath)

	v.Set("receive.jitter-mode", "wobbly")
	_, err = LoadReceive(v)
	assert.Error(t, err)
}

func TestTargetAddr(t *testing.T) {
	assert.Equal(t, "host:48750", TargetAddr("host", 48750))
	assert.Equal(t, "host:1", TargetAddr("host:1", 48750))
	assert.Equal(t, "[::1]:48750", TargetAddr("::1", 48750))
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())

	v := viper.New()
	v.Set("log.level", "warn")
	require.NoError(t, ConfigureLogging(v))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	v.Set("debug", true)
	require.NoError(t, ConfigureLogging(v))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	v.Set("debug", false)
	v.Set("log.level", "loud")
	assert.Error(t, ConfigureLogging(v))
}
