// Package config holds the tunables the fast path needs at start-of-day:
// the accelerated mount mapping, fd-space bases, cache limits and IPC
// timeout. Bound to flags via pflag the way rclone's cmd layer binds
// backend options.
package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Default tunable values for the fast path's fd spaces, cache limits
// and IPC timing.
const (
	DefaultSABFSFdBase    = 10000
	DefaultElfCacheFdBase = 30000
	DefaultMaxFiles       = 32
	DefaultMaxFds         = 256
	DefaultMaxPathLen     = 512
	DefaultIPCTimeout     = 5 * time.Second
	DefaultExitGrace      = 50 * time.Millisecond
	DefaultPIDBase        = 20000
	DefaultMaxProcs       = 64
	DefaultAccelPrefix    = "/mnt/wasi1/"
	DefaultImagePrefix    = "/pack/"
)

// Config is the full set of knobs for one worker's fast path instance.
type Config struct {
	AccelPrefix    string
	ImagePrefix    string
	SABFSFdBase    int
	ElfCacheFdBase int
	MaxFiles       int
	MaxFds         int
	MaxPathLen     int
	IPCTimeout     time.Duration
	ExitGrace      time.Duration
	PIDBase        int
	MaxProcs       int
}

// Default returns the baseline configuration used as the worked
// example throughout this package's defaults.
func Default() Config {
	return Config{
		AccelPrefix:    DefaultAccelPrefix,
		ImagePrefix:    DefaultImagePrefix,
		SABFSFdBase:    DefaultSABFSFdBase,
		ElfCacheFdBase: DefaultElfCacheFdBase,
		MaxFiles:       DefaultMaxFiles,
		MaxFds:         DefaultMaxFds,
		MaxPathLen:     DefaultMaxPathLen,
		IPCTimeout:     DefaultIPCTimeout,
		ExitGrace:      DefaultExitGrace,
		PIDBase:        DefaultPIDBase,
		MaxProcs:       DefaultMaxProcs,
	}
}

// RegisterFlags binds c's fields onto fs, following the defaults
// already present in c (call Default() first to get sane zero values).
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.AccelPrefix, "accel-prefix", c.AccelPrefix, "guest path prefix eligible for interception")
	fs.StringVar(&c.ImagePrefix, "image-prefix", c.ImagePrefix, "SABFS image prefix the accel prefix rewrites onto")
	fs.IntVar(&c.SABFSFdBase, "sabfs-fd-base", c.SABFSFdBase, "first virtual fd reserved for directly-opened SABFS fds")
	fs.IntVar(&c.ElfCacheFdBase, "elf-cache-fd-base", c.ElfCacheFdBase, "first virtual fd reserved for preload-cache fds")
	fs.IntVar(&c.MaxFiles, "max-cache-files", c.MaxFiles, "maximum number of whole-file preload cache slots")
	fs.IntVar(&c.MaxFds, "max-cache-fds", c.MaxFds, "maximum number of open preload-cache virtual fds")
	fs.IntVar(&c.MaxPathLen, "max-path-len", c.MaxPathLen, "maximum bytes read from guest memory for a path string")
	fs.DurationVar(&c.IPCTimeout, "ipc-timeout", c.IPCTimeout, "timeout waiting for the supervisor to answer a process-lifecycle request")
	fs.DurationVar(&c.ExitGrace, "exit-grace", c.ExitGrace, "grace period before resetting the IPC slot after a fire-and-forget exit")
	fs.IntVar(&c.PIDBase, "pid-base", c.PIDBase, "first PID handed out by the simulated process table")
	fs.IntVar(&c.MaxProcs, "max-procs", c.MaxProcs, "maximum number of simulated process table entries")
}
