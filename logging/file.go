package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewFileLogger returns a logger that writes JSON lines to a rotated file at path in
// addition to the regular console output. The returned closer releases the file.
func NewFileLogger(name, path string, level zapcore.Level) (Logger, io.Closer) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    64,
		MaxBackups: 2,
		Compress:   true,
	}
	encoderConfig := NewLoggerConfig().EncoderConfig
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level)

	config := NewLoggerConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	base := zap.Must(config.Build(
		zap.WithClock(utcClock{}),
		zap.WrapCore(func(c zapcore.Core) zapcore.Core { return zapcore.NewTee(c, fileCore) }),
	))
	return &impl{SugaredLogger: base.Sugar().Named(name), name: name}, rotator
}
