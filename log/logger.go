package log

import (
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output encodings accepted in LOG_FORMAT
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

var (
	loggerInstance *zap.Logger
	once           sync.Once

	mu       sync.Mutex
	encoding = FormatJSON
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// build assembles the process logger: ISO-8601 millisecond timestamps to
// stdout, JSON unless console output was configured first.
func build() {
	mu.Lock()
	enc := encoding
	mu.Unlock()

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = enc
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	ec := &cfg.EncoderConfig
	ec.TimeKey = "timestamp"
	ec.LevelKey = "level"
	ec.MessageKey = "message"
	ec.CallerKey = "caller"
	ec.StacktraceKey = "stacktrace"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	if enc == FormatConsole {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	loggerInstance = logger
}

// GetInstance returns the shared process logger, building it on first use
func GetInstance() *zap.Logger {
	once.Do(build)
	return loggerInstance
}

// SetLevel changes the level of the shared logger. Unknown names keep the
// current level and return false.
func SetLevel(name string) bool {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return false
	}
	level.SetLevel(l)
	return true
}

// SetFormat selects the output encoding. It only has an effect before the
// first GetInstance call.
func SetFormat(name string) error {
	if name != FormatJSON && name != FormatConsole {
		return eris.Errorf("log: unknown format %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	encoding = name
	return nil
}
