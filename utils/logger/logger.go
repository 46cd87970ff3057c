package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logrus *logrus.Logger

// Init builds the process logger: JSON lines into a rotated file. When
// toConsole is set the output is mirrored to stderr for local runs.
func Init(logfile string, toConsole bool) {
	logger := logrus.New()

	logger.SetReportCaller(true)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})

	rotated := &lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    200,
		MaxBackups: 50,
		MaxAge:     30,
		Compress:   true,
	}

	if toConsole {
		logger.Out = io.MultiWriter(rotated, os.Stderr)
	} else {
		logger.Out = rotated
	}

	logger.SetLevel(logrus.InfoLevel)
	Logrus = logger
}

func SetLogLevel(runMode string) {
	modeLevel := logrus.InfoLevel

	switch runMode {
	case "debug":
		modeLevel = logrus.DebugLevel
	case "warn":
		modeLevel = logrus.WarnLevel
	case "error":
		modeLevel = logrus.ErrorLevel
	case "fatal":
		modeLevel = logrus.FatalLevel
	default:
		modeLevel = logrus.InfoLevel
	}

	Logrus.SetLevel(modeLevel)
}
