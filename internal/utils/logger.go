package utils

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

var (
	infoLogger  zerolog.Logger
	errorLogger zerolog.Logger
	debugLogger zerolog.Logger
	warnLogger  zerolog.Logger
)

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006/01/02 15:04:05"}
	errOut := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006/01/02 15:04:05"}

	infoLogger = zerolog.New(out).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	errorLogger = zerolog.New(errOut).With().Timestamp().Logger().Level(zerolog.ErrorLevel)
	debugLogger = zerolog.New(out).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	warnLogger = zerolog.New(out).With().Timestamp().Logger().Level(zerolog.WarnLevel)
}

func LogDebug(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	msg := fmt.Sprintf(format, v...)
	debugLogger.Debug().Msgf("[%s:%d] %s", file, line, msg)
}

func LogInfo(format string, v ...interface{}) {
	infoLogger.Info().Msgf(format, v...)
}

func LogError(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	msg := fmt.Sprintf(format, v...)
	errorLogger.Error().Msgf("[%s:%d] %s", file, line, msg)
}

func LogWarning(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	msg := fmt.Sprintf(format, v...)
	warnLogger.Warn().Msgf("[%s:%d] %s", file, line, msg)
}

func TimeTrack(start time.Time, name string) {
	elapsed := time.Since(start)
	LogDebug("%s levou %s", name, elapsed)
}

func GetCurrentTimestamp() int64 {
	return time.Now().Unix()
}
