package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zhouzirui/speakeasy/internal/config"
)

// New builds the process logger. Development gets human-readable console output,
// other environments get JSON at info level.
func New(env config.Environment, opts ...zap.Option) (*zap.Logger, error) {
	if env == config.EnvDevelopment {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build(opts...)
	}
	return zap.NewProduction(opts...)
}

// ToFile builds a logger that writes only to path. The terminal client uses it so
// log lines don't tear through the alt-screen UI.
func ToFile(env config.Environment, path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env == config.EnvDevelopment {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
