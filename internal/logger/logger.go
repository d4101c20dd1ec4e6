package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"trayaudit/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	infoLog    *logrus.Logger
	warningLog *logrus.Logger
	errorLog   *logrus.Logger
	logDir     string
	files      []*os.File
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) (*Logger, error) {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &Logger{
		logDir: config.LogDirectory,
	}

	if err := logger.setupLoggers(); err != nil {
		logger.Close()
		return nil, err
	}
	return logger, nil
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers() error {
	infoFile, err := l.openLogFile("info.log")
	if err != nil {
		return err
	}
	warningFile, err := l.openLogFile("warning.log")
	if err != nil {
		return err
	}
	errorFile, err := l.openLogFile("error.log")
	if err != nil {
		return err
	}

	l.infoLog = newLevelLogger(io.MultiWriter(os.Stdout, infoFile))
	l.warningLog = newLevelLogger(io.MultiWriter(os.Stdout, warningFile))
	l.errorLog = newLevelLogger(io.MultiWriter(os.Stderr, errorFile))
	return nil
}

func newLevelLogger(out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(name string) (*os.File, error) {
	file, err := os.OpenFile(filepath.Join(l.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Errorf(format, v...)
}

// WithFields returns a scoped logger that attaches fields to every entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Entry {
	return &Entry{logger: l, fields: logrus.Fields(fields)}
}

// Entry is a Logger bound to a fixed set of fields.
type Entry struct {
	logger *Logger
	fields logrus.Fields
}

func (e *Entry) Info(format string, v ...interface{}) {
	e.logger.mu.Lock()
	defer e.logger.mu.Unlock()
	e.logger.infoLog.WithFields(e.fields).Infof(format, v...)
}

func (e *Entry) Warning(format string, v ...interface{}) {
	e.logger.mu.Lock()
	defer e.logger.mu.Unlock()
	e.logger.warningLog.WithFields(e.fields).Warnf(format, v...)
}

func (e *Entry) Error(format string, v ...interface{}) {
	e.logger.mu.Lock()
	defer e.logger.mu.Unlock()
	e.logger.errorLog.WithFields(e.fields).Errorf(format, v...)
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	filePath := filepath.Join(l.logDir, filepath.Base(fileName))
	if err := os.Truncate(filePath, 0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", fileName, err)
	}
	return nil
}

// Dir returns the directory holding the log files.
func (l *Logger) Dir() string {
	return l.logDir
}

// Close releases the log file handles.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
}
