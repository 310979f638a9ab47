/*
Copyright © 2025 Benny Powers

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package logging provides the CLI-facing logger used across the store
// engine. It wraps pterm the way the teacher's logger does, minus the
// LSP-notification mode the teacher needed for its editor integration -
// this engine has no UI surface of its own (see spec.md §1's non-goals).
package logging

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"
)

func init() {
	pterm.Info = *pterm.Info.WithPrefix(pterm.Prefix{
		Text:  "INFO",
		Style: pterm.NewStyle(pterm.FgBlue),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Success = *pterm.Success.WithPrefix(pterm.Prefix{
		Text:  "SUCCESS",
		Style: pterm.NewStyle(pterm.FgGreen),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Warning = *pterm.Warning.WithPrefix(pterm.Prefix{
		Text:  "WARNING",
		Style: pterm.NewStyle(pterm.FgYellow),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Error = *pterm.Error.WithPrefix(pterm.Prefix{
		Text:  "ERROR",
		Style: pterm.NewStyle(pterm.FgRed),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Debug = *pterm.Debug.WithPrefix(pterm.Prefix{
		Text:  "DEBUG",
		Style: pterm.NewStyle(pterm.FgCyan),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)
}

// Level is the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the centralized pterm-backed logger for the synchronise engine
// and its CLI. One phase of synchronise (§4.6) logs at most a handful of
// Debug lines; fatal aborts log at Error with the returned error attached.
type Logger struct {
	mu           sync.RWMutex
	debugEnabled bool
	quietEnabled bool
}

var global = &Logger{}

// Default returns the process-wide logger instance.
func Default() *Logger { return global }

func (l *Logger) SetDebugEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugEnabled = enabled
}

func (l *Logger) IsDebugEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.debugEnabled
}

func (l *Logger) SetQuietEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quietEnabled = enabled
}

func (l *Logger) Debug(format string, args ...any)   { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)    { l.log(LevelInfo, format, args...) }
func (l *Logger) Warning(format string, args ...any) { l.log(LevelWarning, format, args...) }
func (l *Logger) Error(format string, args ...any)   { l.log(LevelError, format, args...) }

func (l *Logger) Success(format string, args ...any) {
	l.mu.RLock()
	quiet := l.quietEnabled
	l.mu.RUnlock()
	if quiet {
		return
	}
	pterm.Success.Printf(format+"\n", args...)
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.RLock()
	debug := l.debugEnabled
	quiet := l.quietEnabled
	l.mu.RUnlock()

	if level == LevelDebug && !debug {
		return
	}
	if quiet && (level == LevelInfo || level == LevelDebug) {
		return
	}

	message := fmt.Sprintf(format, args...)
	switch level {
	case LevelDebug:
		pterm.Debug.Println(message)
	case LevelInfo:
		pterm.Info.Println(message)
	case LevelWarning:
		pterm.Warning.Println(message)
	case LevelError:
		pterm.Error.Println(message)
	}
}

// Package-level convenience wrappers around the global logger.
func Debug(format string, args ...any)   { global.Debug(format, args...) }
func Info(format string, args ...any)    { global.Info(format, args...) }
func Warning(format string, args ...any) { global.Warning(format, args...) }
func Error(format string, args ...any)   { global.Error(format, args...) }
func Success(format string, args ...any) { global.Success(format, args...) }
func SetDebugEnabled(enabled bool)       { global.SetDebugEnabled(enabled) }
func IsDebugEnabled() bool               { return global.IsDebugEnabled() }
func SetQuietEnabled(enabled bool)       { global.SetQuietEnabled(enabled) }
