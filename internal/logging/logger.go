package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Dir    string
	Level  string // debug, info, warn, error; empty means info
	Stdout bool   // also write to stdout
}

func New(o Options) (*zap.Logger, error) {
	if o.Dir == "" {
		o.Dir = "logs"
	}
	level := zap.InfoLevel
	if o.Level != "" {
		l, err := zapcore.ParseLevel(o.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(o.Dir, "uptimemon.log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(cfg)

	core := zapcore.NewCore(enc, w, level)
	if o.Stdout {
		core = zapcore.NewTee(core, zapcore.NewCore(enc.Clone(), zapcore.Lock(os.Stdout), level))
	}
	return zap.New(core, zap.AddCaller()), nil
}
