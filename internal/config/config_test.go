package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second load round-trips the written file.
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadPartialConfigNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: Europe/Berlin\nlog_level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "0 3 * * *", cfg.ResyncCron)
	assert.Equal(t, 15, cfg.OffsetMinutes)
	assert.Equal(t, 4, cfg.AlarmHorizonCount)
	assert.Nil(t, cfg.BasicAuth)
	assert.Nil(t, cfg.WebPush)
}

func TestLoadFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `listen: 0.0.0.0:9090
data_dir: /tmp/remindme-data
resync: "30 2 * * *"
notification_offset_minutes: 30
alarm_horizon_count: 8
basic_auth:
  username: admin
  password: hunter2
webpush:
  public_key: pub
  private_key: priv
  contact: mailto:ops@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, "/tmp/remindme-data", cfg.DataDir)
	assert.Equal(t, "30 2 * * *", cfg.ResyncCron)
	assert.Equal(t, 30, cfg.OffsetMinutes)
	assert.Equal(t, 8, cfg.AlarmHorizonCount)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
	require.NotNil(t, cfg.WebPush)
	assert.Equal(t, "mailto:ops@example.com", cfg.WebPush.Contact)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestSaveNilConfig(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "config.yaml"), nil)
	assert.Error(t, err)
}

func TestNormalizeClampsOffsets(t *testing.T) {
	cfg := &Config{OffsetMinutes: -10, AlarmHorizonCount: 0}
	cfg.Normalize()
	assert.Equal(t, 15, cfg.OffsetMinutes)
	assert.Equal(t, 4, cfg.AlarmHorizonCount)
}
