// Package logging builds the process logger used by personctl.
//
// Levels are named (debug, info, warn, error, none) or given as the numeric
// levels the shm transport used: 0 trace, 1 debug, 2 info, 3 warn, 4 error,
// 5 no output. Trace is folded into debug.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "warn"

const timeLayout = "2006-01-02 15:04:05.999999"

var numericLevels = []zapcore.Level{
	zapcore.DebugLevel, // trace
	zapcore.DebugLevel,
	zapcore.InfoLevel,
	zapcore.WarnLevel,
	zapcore.ErrorLevel,
}

// ParseLevel returns the zap level for s. ok is false when s disables output.
func ParseLevel(s string) (lvl zapcore.Level, ok bool, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		s = DefaultLevel
	case "none", "off", "5":
		return zapcore.InvalidLevel, false, nil
	case "trace":
		return zapcore.DebugLevel, true, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= len(numericLevels) {
			return zapcore.InvalidLevel, false, fmt.Errorf("log level %d out of range 0-5", n)
		}
		return numericLevels[n], true, nil
	}
	lvl, err = zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InvalidLevel, false, fmt.Errorf("log level: %w", err)
	}
	return lvl, true, nil
}

// New returns a console logger writing to w (os.Stderr when nil).
func New(level string, w io.Writer) (*zap.Logger, error) {
	lvl, ok, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if !ok {
		return zap.NewNop(), nil
	}
	if w == nil {
		w = os.Stderr
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	if isTerminal(w) {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
