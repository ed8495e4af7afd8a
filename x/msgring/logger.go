package msgring

import "pulsecore-go/types"

// Logger is the non-blocking log facade every task uses. Append is the only
// queue touch it performs, so it is safe at any priority level, including
// inside the pulse task's timer context.
type Logger struct {
	ring   *Ring
	now    func() uint32
	module string
	min    types.LogLevel
}

// NewLogger binds a module name to the shared ring. Records below min are
// discarded before construction.
func NewLogger(ring *Ring, now func() uint32, module string, min types.LogLevel) *Logger {
	return &Logger{ring: ring, now: now, module: module, min: min}
}

// Sub derives a logger for another module sharing the ring and floor.
func (l *Logger) Sub(module string) *Logger {
	return &Logger{ring: l.ring, now: l.now, module: module, min: l.min}
}

func (l *Logger) log(level types.LogLevel, text string) {
	if level < l.min {
		return
	}
	_ = l.ring.TryEnqueue(types.NewLogMessage(l.now(), level, l.module, text))
}

func (l *Logger) Debug(text string) { l.log(types.LevelDebug, text) }
func (l *Logger) Info(text string)  { l.log(types.LevelInfo, text) }
func (l *Logger) Warn(text string)  { l.log(types.LevelWarn, text) }
func (l *Logger) Error(text string) { l.log(types.LevelError, text) }
