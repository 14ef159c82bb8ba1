package ops

import "time"

// Config controls the optional operations HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		a.Pprof != b.Pprof ||
		a.ReadTimeout != b.ReadTimeout || a.WriteTimeout != b.WriteTimeout || a.IdleTimeout != b.IdleTimeout
}
