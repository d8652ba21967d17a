package app

// StopReason is logged on shutdown and handed to plugins.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)
