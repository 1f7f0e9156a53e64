package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defaults to a no-op logger so library packages can log before (or
// without) Init being called; tests leave it as-is.
var Logger = zap.NewNop()

// Init configures the package logger. With an empty file path, log output
// goes to stderr; otherwise it is appended to the given file.
func Init(level, logFile string) error {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(level)); err != nil {
		return err
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		sink = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), sink, atom)
	Logger = zap.New(core, zap.AddCaller())

	return nil
}
