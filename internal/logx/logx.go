// Package logx provides leveled logging in the style used across the
// reference server fleet: a thin wrapper over the standard log package
// with a timestamp-and-level prefix, rather than a structured logging
// dependency (see DESIGN.md for why no third-party logger is wired).
package logx

import (
	"fmt"
	"log"
	"time"
)

func init() {
	log.SetFlags(0)
}

const (
	formatINF = "[%s INF] %s"
	formatWRN = "[%s WRN] %s"
	formatERR = "[%s ERR] %s"
	formatDBG = "[%s DBG] %s"
)

// Level gates which severities are emitted. Debug is the most verbose.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

// ParseLevel maps the LOG_LEVEL environment value to a Level, defaulting
// to LevelInfo for an unrecognized or empty string.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "silent", "none":
		return LevelSilent
	default:
		return LevelInfo
	}
}

var minLevel = LevelInfo

// SetLevel sets the process-wide minimum emitted level.
func SetLevel(l Level) {
	minLevel = l
}

func Infof(format string, v ...interface{}) {
	if minLevel > LevelInfo {
		return
	}
	emit(formatINF, format, v...)
}

func Warnf(format string, v ...interface{}) {
	if minLevel > LevelWarn {
		return
	}
	emit(formatWRN, format, v...)
}

func Errorf(format string, v ...interface{}) {
	if minLevel > LevelError {
		return
	}
	emit(formatERR, format, v...)
}

func Debugf(format string, v ...interface{}) {
	if minLevel > LevelDebug {
		return
	}
	emit(formatDBG, format, v...)
}

func emit(wrapper, format string, v ...interface{}) {
	timestamp := time.Now().Format("15:04:05.000")
	message := fmt.Sprintf(format, v...)
	log.Printf(wrapper, timestamp, message)
}

// Fields renders a key/value context blob appended to a log line, e.g.
// logx.Infof("join rejected%s", logx.Fields{"gameId": id, "reason": "full"})
type Fields map[string]interface{}

func (f Fields) String() string {
	if len(f) == 0 {
		return ""
	}
	out := " |"
	for k, v := range f {
		out += fmt.Sprintf(" %s=%v", k, v)
	}
	return out
}
