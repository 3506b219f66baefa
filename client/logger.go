package client

import "go.uber.org/zap"

// zapLogger 将 zap 适配为 Logger 接口
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger 基于 zap 创建 Logger（nil 时返回空日志器）
func NewZapLogger(logger *zap.Logger) Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }
func (l *zapLogger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, args...) }
func (l *zapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }
