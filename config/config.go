// Package config decodes and freezes server configuration. YAML on disk is
// parsed generically with gopkg.in/yaml.v3 into a map, then mapped onto the
// typed Config struct with mitchellh/mapstructure, mirroring the teacher's
// AttrConfig decoding idiom in services/slam.
package config

import (
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs the server reads at Start. Fields are
// frozen once read; nothing in the server mutates a *Config after Start.
type Config struct {
	IngestParallelism int      `mapstructure:"ingest_parallelism"`
	SubmapCommands    []string `mapstructure:"submap_commands"`
	GlobalCommands    []string `mapstructure:"global_commands"`

	CheckpointIntervalS int    `mapstructure:"checkpoint_interval_s"`
	CheckpointPath      string `mapstructure:"checkpoint_path"`

	StatusIntervalS int `mapstructure:"status_interval_s"`

	// StatusLogPath is the rotating local log file the Status Reporter
	// always writes every snapshot to, regardless of whether a status
	// callback is registered (§4.6 "local logging always on").
	StatusLogPath       string `mapstructure:"status_log_path"`
	StatusLogMaxSizeMB  int    `mapstructure:"status_log_max_size_mb"`
	StatusLogMaxBackups int    `mapstructure:"status_log_max_backups"`
	StatusLogCompress   bool   `mapstructure:"status_log_compress"`

	LookupSensorWhitelist     []string `mapstructure:"lookup_sensor_whitelist"`
	LookupTimestampToleranceNs int64   `mapstructure:"lookup_timestamp_tolerance_ns"`

	RobotRegistryTTLS int `mapstructure:"robot_registry_ttl_s"`

	FailFastOnCommandError bool `mapstructure:"fail_fast_on_command_error"`

	MergeLoopPollIntervalS float64 `mapstructure:"merge_loop_poll_interval_s"`

	// CommandBinary is the external map-processing executable the production
	// Command Runner shells out to (§6).
	CommandBinary string `mapstructure:"command_binary"`

	// SubmapWatchDirs are directories the fsnotify ingest notifier watches.
	SubmapWatchDirs []string `mapstructure:"submap_watch_dirs"`
}

// Default returns a Config with every documented default applied (§3).
func Default() Config {
	return Config{
		IngestParallelism:          4,
		CheckpointIntervalS:        60,
		StatusIntervalS:            10,
		StatusLogPath:              "mapfusiond_status.log",
		StatusLogMaxSizeMB:         50,
		StatusLogMaxBackups:        3,
		StatusLogCompress:          true,
		LookupTimestampToleranceNs: int64(200 * time.Millisecond),
		RobotRegistryTTLS:          3600,
		FailFastOnCommandError:     false,
		MergeLoopPollIntervalS:     1,
	}
}

// Load reads a YAML document from path and decodes it onto Default().
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}
	return Parse(b)
}

// Parse decodes a YAML document's bytes onto Default().
func Parse(b []byte) (Config, error) {
	var generic map[string]interface{}
	if err := yaml.Unmarshal(b, &generic); err != nil {
		return Config{}, errors.Wrap(err, "parse config yaml")
	}

	conf := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &conf,
	})
	if err != nil {
		return Config{}, errors.Wrap(err, "build config decoder")
	}
	if err := decoder.Decode(generic); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return conf, nil
}

// MergeLoopPollInterval is MergeLoopPollIntervalS as a time.Duration.
func (c Config) MergeLoopPollInterval() time.Duration {
	return time.Duration(c.MergeLoopPollIntervalS * float64(time.Second))
}

// CheckpointInterval is CheckpointIntervalS as a time.Duration.
func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalS) * time.Second
}

// StatusInterval is StatusIntervalS as a time.Duration.
func (c Config) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalS) * time.Second
}

// RobotRegistryTTLNs is RobotRegistryTTLS as nanoseconds, the unit the registry
// package's TTL pruning operates in.
func (c Config) RobotRegistryTTLNs() int64 {
	return int64(c.RobotRegistryTTLS) * int64(time.Second)
}

// LookupSensorWhitelistSet returns the whitelist as a set for O(1) lookups,
// or nil if unconfigured (meaning "no whitelist restriction", per §4.5).
func (c Config) LookupSensorWhitelistSet() map[string]struct{} {
	if len(c.LookupSensorWhitelist) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(c.LookupSensorWhitelist))
	for _, s := range c.LookupSensorWhitelist {
		set[s] = struct{}{}
	}
	return set
}
