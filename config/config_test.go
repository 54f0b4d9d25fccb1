package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simulator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http", cfg.Scheme())
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.True(t, cfg.Discovery.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Events.MotionInterval)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
  https: true
device:
  manufacturer: Acme
  uuid: 6ba7b810-9dad-11d1-80b4-00c04fd430c8
media:
  encoding: h264
  stream_uri: rtsp://10.0.0.5:8554/cam
ptz:
  limits:
    pan: {min: -0.5, max: 0.5}
  home: {pan: 0.1}
imaging:
  defaults:
    brightness: 70
    ir_cut_filter: "OFF"
events:
  motion_interval: 5s
  queue_size: 10
log:
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https", cfg.Scheme())
	assert.Equal(t, "cert.pem", cfg.Server.CertFile)
	assert.Equal(t, "key.pem", cfg.Server.KeyFile)
	assert.Equal(t, "Acme", cfg.Device.Manufacturer)
	assert.Equal(t, "Profile-T-Sim", cfg.Device.Model)
	assert.Equal(t, "H264", cfg.Media.Encoding)
	assert.Equal(t, "rtsp://10.0.0.5:8554/cam", cfg.Media.StreamURI)
	assert.Equal(t, onvif.Range{Min: -0.5, Max: 0.5}, cfg.PTZ.Limits.Pan)
	assert.Equal(t, onvif.Range{Min: -1, Max: 1}, cfg.PTZ.Limits.Tilt)
	assert.Equal(t, 0.1, cfg.PTZ.Home.Pan)
	assert.Equal(t, 70.0, cfg.Imaging.Defaults.Brightness)
	assert.Equal(t, 50.0, cfg.Imaging.Defaults.Contrast)
	assert.Equal(t, onvif.IrCutFilterOff, cfg.Imaging.Defaults.IrCutFilter)
	assert.Equal(t, 5*time.Second, cfg.Events.MotionInterval)
	assert.Equal(t, 10, cfg.Events.QueueSize)
	assert.Equal(t, time.Hour, cfg.Events.MaxTermination)
	assert.Equal(t, FormatJSON, cfg.Log.Format)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\n")
	t.Setenv("ONVIF_SIM_SERVER_PORT", "7070")
	t.Setenv("ONVIF_SIM_PTZ_FORWARDING", "true")
	t.Setenv("ONVIF_SIM_PTZ_FORWARD_ADDR", "10.1.1.1:6000")
	t.Setenv("ONVIF_SIM_EVENTS_MOTION_INTERVAL", "2s")
	t.Setenv("ONVIF_SIM_DISCOVERY_ENABLED", "false")
	t.Setenv("ONVIF_SIM_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.PTZ.Forwarding)
	assert.Equal(t, "10.1.1.1:6000", cfg.PTZ.ForwardAddr)
	assert.Equal(t, ":50002", cfg.PTZ.FeedbackAddr)
	assert.Equal(t, 2*time.Second, cfg.Events.MotionInterval)
	assert.False(t, cfg.Discovery.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "server: [1, 2"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"uuid", func(c *Config) { c.Device.UUID = "not-a-uuid" }},
		{"encoding", func(c *Config) { c.Media.Encoding = "MJPEG" }},
		{"resolution", func(c *Config) { c.Media.Width = 0 }},
		{"range", func(c *Config) { c.PTZ.Limits.Zoom = onvif.Range{Min: 1, Max: 0} }},
		{"forwarding", func(c *Config) { c.PTZ.Forwarding = true; c.PTZ.ForwardAddr = "" }},
		{"ir mode", func(c *Config) { c.Imaging.Defaults.IrCutFilter = "NIGHT" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.NotValid))
		})
	}
}

func TestLoadExampleFile(t *testing.T) {
	cfg, err := Load("example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Lab Camera", cfg.Device.Name)
	assert.Equal(t, "192.168.1.50", cfg.Server.AdvertiseIP)
	assert.True(t, cfg.PTZ.Forwarding)
	assert.Equal(t, onvif.Range{Min: -1, Max: 1}, cfg.PTZ.Limits.Velocity)
	assert.Equal(t, onvif.IrCutFilterAuto, cfg.Imaging.Defaults.IrCutFilter)
	assert.Equal(t, time.Hour, cfg.Events.MaxTermination)
	assert.Equal(t, onvif.DefaultMulticastAddr, cfg.Discovery.MulticastAddr)
}
