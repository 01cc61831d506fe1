package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Logger defines the interface for logging throughout the broker and its clients.
// Different implementations are used for servers, the monitor TUI and tests.
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ConsoleLogger writes human-readable logs to stdout (info, debug) and stderr (warn, error).
type ConsoleLogger struct {
	mu      sync.Mutex
	out     io.Writer
	err     io.Writer
	verbose bool
}

// NewConsoleLogger creates a logger that prints debug lines only when verbose is set.
func NewConsoleLogger(verbose bool) *ConsoleLogger {
	return &ConsoleLogger{out: os.Stdout, err: os.Stderr, verbose: verbose}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	c.write(c.out, "INFO", msg, args)
}

func (c *ConsoleLogger) Warn(msg string, args ...interface{}) {
	c.write(c.err, "WARN", msg, args)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	c.write(c.err, "ERROR", msg, args)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	if c.verbose {
		c.write(c.out, "DEBUG", msg, args)
	}
}

func (c *ConsoleLogger) write(w io.Writer, level, msg string, args []interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(w, "["+level+"] "+msg+"\n", args...)
}

// SilentLogger discards all log messages.
// Used by the monitor TUI and the MCP server, where stdout belongs to the UI or protocol.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Warn(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}
