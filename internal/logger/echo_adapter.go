package logger

import (
	"fmt"
	"io"

	echo_log "github.com/labstack/gommon/log"
)

// EchoLoggerAdapter routes Echo's internal logging (startup failures, errors
// from the default handlers) through a Logger so the admin API writes one log
// format. Output, prefix and header are owned by the Logger and cannot be
// changed through Echo.
type EchoLoggerAdapter struct {
	logger Logger
	level  echo_log.Lvl
}

// NewEchoLoggerAdapter creates a new Echo logger adapter.
func NewEchoLoggerAdapter(log Logger) *EchoLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &EchoLoggerAdapter{logger: log, level: echo_log.INFO}
}

func (a *EchoLoggerAdapter) Output() io.Writer    { return io.Discard }
func (a *EchoLoggerAdapter) SetOutput(_ io.Writer) {}
func (a *EchoLoggerAdapter) Prefix() string        { return "" }
func (a *EchoLoggerAdapter) SetPrefix(_ string)    {}
func (a *EchoLoggerAdapter) SetHeader(_ string)    {}

// Level reports the last level set through Echo. Filtering itself is done by
// the Logger.
func (a *EchoLoggerAdapter) Level() echo_log.Lvl       { return a.level }
func (a *EchoLoggerAdapter) SetLevel(lvl echo_log.Lvl) { a.level = lvl }

func (a *EchoLoggerAdapter) Print(i ...any)                 { a.logger.Info(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Printf(format string, v ...any) { a.logger.Info(fmt.Sprintf(format, v...)) }
func (a *EchoLoggerAdapter) Printj(j echo_log.JSON)         { a.json(LogLevelInfo, j) }

func (a *EchoLoggerAdapter) Debug(i ...any)                 { a.logger.Debug(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Debugf(format string, v ...any) { a.logger.Debug(fmt.Sprintf(format, v...)) }
func (a *EchoLoggerAdapter) Debugj(j echo_log.JSON)         { a.json(LogLevelDebug, j) }

func (a *EchoLoggerAdapter) Info(i ...any)                 { a.logger.Info(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Infof(format string, v ...any) { a.logger.Info(fmt.Sprintf(format, v...)) }
func (a *EchoLoggerAdapter) Infoj(j echo_log.JSON)         { a.json(LogLevelInfo, j) }

func (a *EchoLoggerAdapter) Warn(i ...any)                 { a.logger.Warn(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Warnf(format string, v ...any) { a.logger.Warn(fmt.Sprintf(format, v...)) }
func (a *EchoLoggerAdapter) Warnj(j echo_log.JSON)         { a.json(LogLevelWarn, j) }

func (a *EchoLoggerAdapter) Error(i ...any)                 { a.logger.Error(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Errorf(format string, v ...any) { a.logger.Error(fmt.Sprintf(format, v...)) }
func (a *EchoLoggerAdapter) Errorj(j echo_log.JSON)         { a.json(LogLevelError, j) }

// Fatal and Panic log at ERROR and panic. The process is never exited from
// inside a request; Echo's Recover middleware turns the panic into a 500.
func (a *EchoLoggerAdapter) Fatal(i ...any) { a.panic(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Fatalf(format string, v ...any) {
	a.panic(fmt.Sprintf(format, v...))
}
func (a *EchoLoggerAdapter) Fatalj(j echo_log.JSON) { a.panic(fmt.Sprint(j)) }

func (a *EchoLoggerAdapter) Panic(i ...any) { a.panic(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Panicf(format string, v ...any) {
	a.panic(fmt.Sprintf(format, v...))
}
func (a *EchoLoggerAdapter) Panicj(j echo_log.JSON) { a.panic(fmt.Sprint(j)) }

func (a *EchoLoggerAdapter) json(level LogLevel, j echo_log.JSON) {
	a.logger.Log(level, "echo", Any("data", map[string]any(j)))
}

func (a *EchoLoggerAdapter) panic(msg string) {
	a.logger.Error(msg)
	panic("echo: " + msg)
}
