package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"

	sinkMu    sync.RWMutex
	alertSink AlertSink
)

// AlertSink receives elevated-severity messages in addition to the log,
// so a human is informed (operational telegram channel in production).
type AlertSink interface {
	SendAlert(text string)
}

func Init() error {
	l, err := zap.NewProduction()
	if err != nil {
		return err
	}
	InfoLogger = l
	FatalLogger = l
	return nil
}

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

func SetAlertSink(s AlertSink) {
	sinkMu.Lock()
	alertSink = s
	sinkMu.Unlock()
}

func Info(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Info(msg)
}

func Error(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Error(msg)
}

// Alert logs at error level and mirrors the message to the registered sink.
// Delivery failures are the sink's problem; the calling loop keeps running.
func Alert(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if InfoLogger != nil {
		InfoLogger.With(
			zap.String("service", serviceName),
			zap.Bool("alert", true),
		).Error(msg)
	}

	sinkMu.RLock()
	s := alertSink
	sinkMu.RUnlock()
	if s != nil {
		s.SendAlert(msg)
	}
}

func Fatal(format string, args ...interface{}) {
	if FatalLogger == nil {
		panic("FatalLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	FatalLogger.With(
		zap.String("service", serviceName),
	).Fatal(msg)
}
