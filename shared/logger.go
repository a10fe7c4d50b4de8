package shared

import "go.uber.org/zap"

// Logger is the leveled-logging surface this module asks callers to
// provide. It is a thin subset of *zap.Logger so embedders (the gRPC
// service, the CLI, tests) can pass their own zap instance without this
// package importing a process-wide global sink.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// DisabledLogger returns a Logger that discards everything, used as the
// default when no logger is supplied.
func DisabledLogger() Logger {
	return zap.NewNop()
}
