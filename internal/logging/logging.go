// Package logging configures the shared logrus instance used by every
// runtime component: a line format carrying the request id, gin writer
// redirection, and optional rotating file output with a bounded total
// log directory size.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce sync.Once
	outMu     sync.Mutex
	fileOut   *lumberjack.Logger
	ginPipes  []*io.PipeWriter
)

// Formatter renders one entry as
//
//	[2026-07-30 10:12:44] [a1b2c3d4] [info ] [dispatcher.go:87] message key=value
//
// where the second field is the request id, or dashes outside a request.
type Formatter struct{}

// fieldOrder fixes the display order of the structured fields the runtime
// attaches; fields outside this list are not printed.
var fieldOrder = []string{"component", "operation", "scheme", "attempt", "status", "error"}

// Format implements logrus.Formatter.
func (Formatter) Format(entry *log.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	id := "--------"
	if v, ok := entry.Data["request_id"].(string); ok && v != "" {
		id = v
	}
	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	fmt.Fprintf(b, "[%s] [%s] [%-5s]", entry.Time.Format("2006-01-02 15:04:05"), id, level)
	if entry.Caller != nil {
		fmt.Fprintf(b, " [%s:%d]", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	b.WriteByte(' ')
	b.WriteString(strings.TrimRight(entry.Message, "\r\n"))
	for _, k := range fieldOrder {
		if v, ok := entry.Data[k]; ok {
			fmt.Fprintf(b, " %s=%v", k, v)
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Setup installs the formatter on the shared logrus instance and routes
// gin's own output through it. Safe to call multiple times; the first
// call wins.
func Setup() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&Formatter{})

		info := log.StandardLogger().Writer()
		errw := log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DefaultWriter = info
		gin.DefaultErrorWriter = errw
		ginPipes = append(ginPipes, info, errw)
		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			log.StandardLogger().Infof(strings.TrimRight(format, "\r\n"), values...)
		}

		log.RegisterExitHandler(closeOutputs)
	})
}

// OutputConfig selects the global log destination.
type OutputConfig struct {
	// ToFile switches output from stdout to a rotating file under Dir.
	ToFile bool
	// Dir is the log directory; defaults to "logs".
	Dir string
	// MaxTotalSizeMB bounds the log directory's total size; 0 disables
	// the background cleaner.
	MaxTotalSizeMB int
	// Level is the logrus level name; empty keeps the current level.
	Level string
}

// ConfigureOutput applies cfg, creating the log directory and starting or
// stopping the directory cleaner as needed.
func ConfigureOutput(cfg OutputConfig) error {
	Setup()

	if cfg.Level != "" {
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("logging: parse level %q: %w", cfg.Level, err)
		}
		log.SetLevel(level)
	}

	outMu.Lock()
	defer outMu.Unlock()

	dir := cfg.Dir
	if dir == "" {
		dir = "logs"
	}

	if !cfg.ToFile {
		closeFileOutputLocked()
		log.SetOutput(os.Stdout)
		configureDirCleanerLocked(dir, cfg.MaxTotalSizeMB, "")
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log directory: %w", err)
	}
	closeFileOutputLocked()
	path := filepath.Join(dir, "rtcore.log")
	fileOut = &lumberjack.Logger{
		Filename: path,
		MaxSize:  10,
	}
	log.SetOutput(fileOut)
	configureDirCleanerLocked(dir, cfg.MaxTotalSizeMB, path)
	return nil
}

func closeFileOutputLocked() {
	if fileOut != nil {
		_ = fileOut.Close()
		fileOut = nil
	}
}

// closeOutputs tears down everything Setup and ConfigureOutput opened:
// the directory cleaner, the rotating file, and the gin pipe writers.
// Registered as the logrus exit handler.
func closeOutputs() {
	outMu.Lock()
	defer outMu.Unlock()

	stopDirCleanerLocked()
	closeFileOutputLocked()
	for _, p := range ginPipes {
		_ = p.Close()
	}
	ginPipes = nil
	log.SetOutput(os.Stdout)
}
