package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 项目统一的结构化日志接口，参数为 key/value 交替排列
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志选项
type Options struct {
	Level  string   // debug/info/warn/error
	Writer []string // console、file
	File   string   // file 输出路径
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New 根据选项创建基于 zerolog 的日志器
func New(opts Options) Logger {
	var writers []io.Writer
	for _, w := range opts.Writer {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		case "file":
			path := opts.File
			if path == "" {
				path = filepath.Join("logs", "storyharness.log")
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   path,
				MaxSize:    20, // MB
				MaxBackups: 5,
				MaxAge:     14,
				Compress:   true,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// NewWithWriter 输出到指定 writer，测试中用于捕获日志
func NewWithWriter(w io.Writer, level string) Logger {
	lv, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lv = zerolog.DebugLevel
	}
	return &zeroLogger{zl: zerolog.New(w).Level(lv).With().Timestamp().Logger()}
}

// NewNop 丢弃所有输出
func NewNop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func (l *zeroLogger) Debug(msg string, kv ...any) { l.zl.Debug().Fields(kv).Msg(msg) }
func (l *zeroLogger) Info(msg string, kv ...any)  { l.zl.Info().Fields(kv).Msg(msg) }
func (l *zeroLogger) Warn(msg string, kv ...any)  { l.zl.Warn().Fields(kv).Msg(msg) }
func (l *zeroLogger) Error(msg string, kv ...any) { l.zl.Error().Fields(kv).Msg(msg) }

func (l *zeroLogger) Err(err error, msg string, kv ...any) {
	l.zl.Error().Err(err).Fields(kv).Msg(msg)
}

func (l *zeroLogger) With(kv ...any) Logger {
	return &zeroLogger{zl: l.zl.With().Fields(kv).Logger()}
}
