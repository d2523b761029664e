package app

import (
	"fmt"
	"strings"
	"time"

	"meetwatch/internal/config"
	"meetwatch/internal/observability/pprof"
)

// mapPprofConfig validates and converts the debug server section. It never
// starts the server.
func mapPprofConfig(cfg *Config) (pprof.Config, error) {
	var out pprof.Config
	if cfg == nil {
		return out, nil
	}
	pc := cfg.Pprof

	out.Enabled = pc.Enabled
	out.AllowInsecure = pc.AllowInsecure
	out.Token = strings.TrimSpace(pc.Token)
	out.Addr = strings.TrimSpace(pc.Addr)
	out.Prefix = strings.TrimSpace(pc.Prefix)
	if out.Addr == "" {
		out.Addr = "127.0.0.1:6060"
	}

	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("pprof.read_timeout", pc.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	// 0 keeps writes unbounded so /profile can stream for its full duration.
	if out.WriteTimeout, err = config.ParseDurationField("pprof.write_timeout", pc.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("pprof.idle_timeout", pc.IdleTimeout, 120*time.Second); err != nil {
		return out, err
	}

	if pc.MutexProfileFraction < 0 {
		return out, fmt.Errorf("pprof.mutex_profile_fraction must be >= 0")
	}
	if pc.BlockProfileRate < 0 {
		return out, fmt.Errorf("pprof.block_profile_rate must be >= 0")
	}
	out.MutexProfileFraction = pc.MutexProfileFraction
	out.BlockProfileRate = pc.BlockProfileRate

	if out.Enabled {
		if err := pprof.CheckBind(out); err != nil {
			return out, err
		}
	}
	return out, nil
}
