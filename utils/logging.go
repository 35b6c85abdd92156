// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/luxfi/log"
	"golang.org/x/term"
)

// ParseLogLevel maps a configured level name onto a handler level.
// "trace" and "crit" are accepted alongside the slog level names.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.LevelTrace, nil
	case "crit", "fatal":
		return log.LevelCrit, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// NewLogger builds a terminal logger writing to stderr at [level], tagged
// with the given component name. Colors are enabled when stderr is a terminal.
func NewLogger(component string, level string) (log.Logger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	useColor := term.IsTerminal(int(os.Stderr.Fd()))
	logger := log.NewLoggerFromHandler(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, useColor))
	return logger.With(log.String("component", component)), nil
}
