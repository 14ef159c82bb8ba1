package app

// StopReason is logged on shutdown and reported to systemd.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)
