package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EncodingJSON    = "json"
	EncodingConsole = "console"
)

type LogConfig struct {
	Level        zapcore.Level `json:"level" yaml:"level"`               // Level 最低日志等级，DEBUG<INFO<WARN<ERROR<FATAL 例如：info-->收集info等级以上的日志
	Encoding     string        `json:"encoding" yaml:"encoding"`         // Encoding 日志格式，json或console，默认为json
	FileName     string        `json:"fileName" yaml:"fileName"`         // FileName 日志文件位置，为空时只输出到控制台
	MaxSize      int           `json:"maxSize" yaml:"maxSize"`           // MaxSize 进行切割之前，日志文件的最大大小(MB为单位)，默认为100MB
	MaxAge       int           `json:"maxAge" yaml:"maxAge"`             // MaxAge 保留旧日志文件的最大天数
	MaxBackups   int           `json:"maxBackups" yaml:"maxBackups"`     // MaxBackups 保留旧日志文件的最大个数，默认全部保留
	IsStdout     bool          `json:"isStdout" yaml:"isStdout"`         // IsStdout 写入文件的同时是否输出到控制台
	IsStackTrace bool          `json:"isStackTrace" yaml:"isStackTrace"` // IsStackTrace ERROR及以上等级是否输出堆栈信息
}

// InitLogger 根据配置创建Logger，并替换全局Logger，各组件通过zap.L()获取
func InitLogger(lCfg *LogConfig) *zap.Logger {
	core := zapcore.NewCore(newEncoder(lCfg.Encoding), newWriteSyncer(lCfg), lCfg.Level)

	opts := []zap.Option{zap.AddCaller()}
	if lCfg.IsStackTrace {
		opts = append(opts, zap.AddStacktrace(zap.ErrorLevel))
	}
	logger := zap.New(core, opts...)
	zap.ReplaceGlobals(logger)
	return logger
}

// newEncoder 日志格式：时间精确到毫秒，等级大写，调用位置只保留包名及文件名
func newEncoder(encoding string) zapcore.Encoder {
	encodeConfig := zap.NewProductionEncoderConfig()
	encodeConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	encodeConfig.TimeKey = "time"
	encodeConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encodeConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encodeConfig.EncodeDuration = zapcore.StringDurationEncoder

	if encoding == EncodingConsole {
		return zapcore.NewConsoleEncoder(encodeConfig)
	}
	return zapcore.NewJSONEncoder(encodeConfig)
}

// newWriteSyncer 日志写入的位置：未配置文件时只输出到控制台，否则写入按大小切割的日志文件
func newWriteSyncer(lCfg *LogConfig) zapcore.WriteSyncer {
	stdout := zapcore.Lock(os.Stdout)
	if lCfg.FileName == "" {
		return stdout
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   lCfg.FileName,
		MaxSize:    lCfg.MaxSize,
		MaxAge:     lCfg.MaxAge,
		MaxBackups: lCfg.MaxBackups,
		Compress:   true, // 归档的旧文件进行gzip压缩
	})
	if lCfg.IsStdout {
		return zapcore.NewMultiWriteSyncer(fileWriter, stdout)
	}
	return fileWriter
}
