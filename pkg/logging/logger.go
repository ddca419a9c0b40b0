package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config はロガーの設定。
type Config struct {
	// Service はログの service フィールドに出力するサービス名。
	Service string
	// Level はログレベル（debug, info, warn, error）。
	Level string
	// Format は出力形式（json または text）。
	Format string
	// File はログファイルのパス。空の場合は標準エラー出力のみに書き込む。
	File string
	// MaxSizeMB はローテーション前のログファイルの最大サイズ（MB）。
	MaxSizeMB int
	// MaxBackups は保持する古いログファイルの数。
	MaxBackups int
	// MaxAgeDays は古いログファイルを保持する日数。
	MaxAgeDays int
}

// New は設定からlogrusロガーを生成する。
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("ログレベルの解析に失敗: %w", err)
	}
	logger.SetLevel(lv)

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("未対応のログ形式です: %q", cfg.Format)
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		})
	}
	logger.SetOutput(out)

	if cfg.Service != "" {
		logger.AddHook(serviceHook{service: cfg.Service})
	}
	return logger, nil
}

// Discard はテスト用に何も出力しないロガーを返す。
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// serviceHook はすべてのログエントリに service フィールドを付与する。
type serviceHook struct {
	service string
}

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = h.service
	}
	return nil
}
