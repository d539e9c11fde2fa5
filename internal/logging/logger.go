package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	debug *log.Logger
	err   *log.Logger
	errMu sync.Mutex
	errW  io.WriteCloser

	prefix string
}

func New(errorsPath string) (*Logger, error) {
	// Clear the log file on startup
	if err := os.Truncate(errorsPath, 0); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	f, err := os.OpenFile(errorsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l := newWithWriters(os.Stdout, io.MultiWriter(os.Stdout, f))
	l.errW = f
	return l, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return newWithWriters(io.Discard, io.Discard)
}

// NewWriter logs every level to w.
func NewWriter(w io.Writer) *Logger {
	return newWithWriters(w, w)
}

func newWithWriters(out, errOut io.Writer) *Logger {
	return &Logger{
		info:  log.New(out, "INFO ", log.LstdFlags|log.Lmicroseconds),
		warn:  log.New(out, "WARN ", log.LstdFlags|log.Lmicroseconds),
		debug: log.New(out, "DEBUG ", log.LstdFlags|log.Lmicroseconds),
		err:   log.New(errOut, "ERROR ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
	}
}

// With returns a logger sharing the same outputs whose lines are prefixed
// with scope, e.g. "rpa[tab_1700000000000_1]".
func (l *Logger) With(scope string) *Logger {
	return &Logger{
		info:   l.info,
		warn:   l.warn,
		debug:  l.debug,
		err:    l.err,
		prefix: l.prefix + scope + " ",
	}
}

func (l *Logger) Close() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.errW != nil {
		return l.errW.Close()
	}
	return nil
}

func (l *Logger) Infof(format string, args ...any) {
	l.info.Print(l.prefix + fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.warn.Print(l.prefix + fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) {
	if os.Getenv("DEBUG") == "" {
		return
	}
	l.debug.Print(l.prefix + fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	// calldepth 2 so Lshortfile points at the caller, not this file
	_ = l.err.Output(2, l.prefix+fmt.Sprintf(format, args...))
}

func (l *Logger) Error(err error) {
	if err == nil {
		return
	}
	l.errMu.Lock()
	defer l.errMu.Unlock()
	_ = l.err.Output(2, l.prefix+err.Error())
}
