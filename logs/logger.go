package logs

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger 全局日志器，Init 后可用
var Logger = logrus.New()

type Options struct {
	Level  string // debug|info|warning|error
	Format string // text|json
}

func Init(opts Options) {
	switch opts.Level {
	case "debug":
		Logger.SetLevel(logrus.DebugLevel)
	case "warning", "warn":
		Logger.SetLevel(logrus.WarnLevel)
	case "error":
		Logger.SetLevel(logrus.ErrorLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}

	if opts.Format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	Logger.SetOutput(os.Stdout)
}
