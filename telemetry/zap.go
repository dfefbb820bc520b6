package telemetry

import "go.uber.org/zap"

// zapLogger adapts *zap.SugaredLogger to the Logger interface. Grounded on
// the teacher's clue-backed logger adapter (runtime/agent/telemetry/clue.go),
// swapped to zap because the Goa/clue logging facade has no role once the
// DSL/codegen layer is dropped (see DESIGN.md).
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps a configured *zap.Logger for use as a telemetry.Logger.
func NewZapLogger(l *zap.Logger) Logger {
	return zapLogger{s: l.Sugar()}
}

func (z zapLogger) Debug(msg string, fields ...any) { z.s.Debugw(msg, fields...) }
func (z zapLogger) Info(msg string, fields ...any)  { z.s.Infow(msg, fields...) }
func (z zapLogger) Warn(msg string, fields ...any)  { z.s.Warnw(msg, fields...) }
func (z zapLogger) Error(msg string, fields ...any) { z.s.Errorw(msg, fields...) }

func (z zapLogger) With(fields ...any) Logger {
	return zapLogger{s: z.s.With(fields...)}
}
