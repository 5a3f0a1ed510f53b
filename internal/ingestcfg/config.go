// Package ingestcfg loads the ingest server's room-policing limits from
// viper-backed configuration (file + environment) and watches the config
// file with fsnotify so operators can retune bitrate and keyframe limits
// without restarting a process mid-room.
package ingestcfg

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/bitriver/edge/internal/ingest"
)

// Keys used both for viper defaults/binding and for the config file itself.
const (
	keyBitrateCeilingBps       = "policer.bitrate_ceiling_bps"
	keyBitrateTickInterval     = "policer.bitrate_tick_interval"
	keyMaxBytesSinceKeyframe   = "policer.max_bytes_since_keyframe"
	keyMaxTimeBetweenKeyframes = "policer.max_time_between_keyframes"
	keyListenAddr              = "ingest.listen_addr"
	keyTranscoderTimeout       = "ingest.transcoder_timeout"
	keyGRPCAdvertiseHost       = "ingest.grpc_advertise_host"
	keyMetricsAddr             = "ingest.metrics_addr"
)

// SetDefaults seeds v with the same values internal/ingest.DefaultConfig
// carries, so a deployment with no config file still runs sane limits.
func SetDefaults(v *viper.Viper) {
	def := ingest.DefaultPolicerConfig()
	v.SetDefault(keyBitrateCeilingBps, def.BitrateCeilingBps)
	v.SetDefault(keyBitrateTickInterval, def.BitrateTickInterval)
	v.SetDefault(keyMaxBytesSinceKeyframe, def.MaxBytesSinceKeyframe)
	v.SetDefault(keyMaxTimeBetweenKeyframes, def.MaxTimeBetweenKeyframes)
	v.SetDefault(keyListenAddr, ":1935")
	v.SetDefault(keyTranscoderTimeout, ingest.DefaultConfig().TranscoderTimeout)
	v.SetDefault(keyGRPCAdvertiseHost, "")
	v.SetDefault(keyMetricsAddr, ":9090")
}

// Settings bundles the ingest server's full reloadable configuration:
// listener/transcoder wiring plus the policer limits.
type Settings struct {
	ListenAddr        string
	MetricsAddr       string
	GRPCAdvertiseHost string
	TranscoderTimeout time.Duration
	Policer           ingest.PolicerConfig
}

// Load reads the current values out of v into a Settings. Call again after
// viper.ReadInConfig to pick up a changed file.
func Load(v *viper.Viper) (Settings, error) {
	if !(v.GetInt64(keyBitrateCeilingBps) > 0) {
		return Settings{}, fmt.Errorf("ingestcfg: %s must be positive", keyBitrateCeilingBps)
	}
	if !(v.GetInt64(keyMaxBytesSinceKeyframe) > 0) {
		return Settings{}, fmt.Errorf("ingestcfg: %s must be positive", keyMaxBytesSinceKeyframe)
	}
	return Settings{
		ListenAddr:        v.GetString(keyListenAddr),
		MetricsAddr:       v.GetString(keyMetricsAddr),
		GRPCAdvertiseHost: v.GetString(keyGRPCAdvertiseHost),
		TranscoderTimeout: v.GetDuration(keyTranscoderTimeout),
		Policer: ingest.PolicerConfig{
			BitrateCeilingBps:       v.GetInt64(keyBitrateCeilingBps),
			BitrateTickInterval:     v.GetDuration(keyBitrateTickInterval),
			MaxBytesSinceKeyframe:   v.GetInt64(keyMaxBytesSinceKeyframe),
			MaxTimeBetweenKeyframes: v.GetDuration(keyMaxTimeBetweenKeyframes),
		},
	}, nil
}

// ToIngestConfig projects Settings onto the ingest.Config shape
// internal/ingest.New and internal/rtmpingest consume.
func (s Settings) ToIngestConfig() ingest.Config {
	return ingest.Config{
		Policer:           s.Policer,
		TranscoderTimeout: s.TranscoderTimeout,
		GRPCAdvertiseHost: s.GRPCAdvertiseHost,
	}
}
