// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fwlog

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func (lv Level) toZapLevel() zapcore.Level {
	switch lv {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo, LevelNotice:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewZapLogger returns a Logger backed by a zap production core.
// Install it with SetLogger to replace the stdlib default logger.
func NewZapLogger() Logger {
	zl := &zapLogger{level: zap.NewAtomicLevelAt(zapcore.InfoLevel), out: os.Stderr}
	zl.rebuild()
	return zl
}

type zapLogger struct {
	logger *zap.SugaredLogger
	level  zap.AtomicLevel
	out    io.Writer
}

func (l *zapLogger) rebuild() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(l.out),
		l.level,
	)
	l.logger = zap.New(core).Sugar()
}

func (l *zapLogger) SetLevel(lv Level) {
	l.level.SetLevel(lv.toZapLevel())
}

func (l *zapLogger) SetOutput(w io.Writer) {
	l.out = w
	l.rebuild()
}

func (l *zapLogger) Tracef(format string, v ...any)  { l.logger.Debugf(format, v...) }
func (l *zapLogger) Debugf(format string, v ...any)  { l.logger.Debugf(format, v...) }
func (l *zapLogger) Infof(format string, v ...any)   { l.logger.Infof(format, v...) }
func (l *zapLogger) Noticef(format string, v ...any) { l.logger.Infof(format, v...) }
func (l *zapLogger) Warnf(format string, v ...any)   { l.logger.Warnf(format, v...) }
func (l *zapLogger) Errorf(format string, v ...any)  { l.logger.Errorf(format, v...) }
func (l *zapLogger) Fatalf(format string, v ...any)  { l.logger.Fatalf(format, v...) }

func (l *zapLogger) Trace(v ...any)  { l.logger.Debug(v...) }
func (l *zapLogger) Debug(v ...any)  { l.logger.Debug(v...) }
func (l *zapLogger) Info(v ...any)   { l.logger.Info(v...) }
func (l *zapLogger) Notice(v ...any) { l.logger.Info(v...) }
func (l *zapLogger) Warn(v ...any)   { l.logger.Warn(v...) }
func (l *zapLogger) Error(v ...any)  { l.logger.Error(v...) }
func (l *zapLogger) Fatal(v ...any)  { l.logger.Fatal(v...) }
