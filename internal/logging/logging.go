package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Cfg struct {
	Level string
	JSON  bool
}

func New(c Cfg) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if !c.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if c.Level != "" {
		_ = cfg.Level.UnmarshalText([]byte(c.Level))
	}
	l, _ := cfg.Build()
	return l
}
