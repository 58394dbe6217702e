// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger configuration
type Config struct {
	LogsDirectory string
	LogFileFormat string
	TimeZone      string
	Level         string
	// Console mirrors log lines to stdout. The terminal wizard turns it off.
	Console bool
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]int{
	"DEBUG": levelDebug,
	"INFO":  levelInfo,
	"WARN":  levelWarn,
	"ERROR": levelError,
}

var (
	initialized int32 // 0 = not initialized, 1 = initialized
	minLevel    int32 = levelInfo
	logger      *log.Logger
	logFile     *os.File
	timeZone    = time.Local
	logFilePath string
	mu          sync.Mutex
)

// SetupLogger opens today's log file and starts writing to it.
func SetupLogger(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 1 {
		return fmt.Errorf("logger already initialized")
	}

	if config.TimeZone == "" {
		config.TimeZone = "Local"
	}
	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		return fmt.Errorf("failed to load time zone '%s': %w", config.TimeZone, err)
	}
	timeZone = loc
	SetLevel(config.Level)

	if err := os.MkdirAll(config.LogsDirectory, 0775); err != nil {
		return fmt.Errorf("failed to create logs directory '%s': %w", config.LogsDirectory, err)
	}

	logFileName := fmt.Sprintf(config.LogFileFormat, time.Now().In(loc).Format("2006-01-02"))
	if filepath.IsAbs(logFileName) {
		logFilePath = logFileName
	} else {
		logFilePath = filepath.Join(config.LogsDirectory, logFileName)
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0664)
	if err != nil {
		return fmt.Errorf("failed to open log file '%s': %w", logFilePath, err)
	}
	logFile = f

	var out io.Writer = f
	if config.Console {
		out = io.MultiWriter(os.Stdout, f)
	}
	logger = log.New(out, "", 0)

	atomic.StoreInt32(&initialized, 1)
	LogInfo("Logger initialized, writing to %s", logFilePath)
	return nil
}

// SetOutput routes log lines to w without touching the filesystem.
// Tests use it to capture or silence output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", 0)
	atomic.StoreInt32(&initialized, 1)
}

// SetLevel drops messages below level. Unknown names fall back to INFO.
func SetLevel(level string) {
	l, ok := levelNames[strings.ToUpper(strings.TrimSpace(level))]
	if !ok {
		l = levelInfo
	}
	atomic.StoreInt32(&minLevel, int32(l))
}

// Close flushes and releases the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	atomic.StoreInt32(&initialized, 0)
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func GetLogFilePath() string {
	return logFilePath
}

func IsInitialized() bool {
	return atomic.LoadInt32(&initialized) == 1
}

func LogMessage(level string, message string, v ...interface{}) {
	if levelNames[level] < int(atomic.LoadInt32(&minLevel)) {
		return
	}
	formattedMsg := fmt.Sprintf(message, v...)

	if !IsInitialized() {
		log.Printf("[%s] %s", level, formattedMsg)
		return
	}

	_, file, line, _ := runtime.Caller(2)
	timestamp := time.Now().In(timeZone).Format("2006-01-02 15:04:05 MST")
	logger.Printf("[%s] %s %s:%d - %s", level, timestamp, filepath.Base(file), line, formattedMsg)
}

func LogDebug(message string, v ...interface{}) { LogMessage("DEBUG", message, v...) }
func LogInfo(message string, v ...interface{})  { LogMessage("INFO", message, v...) }
func LogWarn(message string, v ...interface{})  { LogMessage("WARN", message, v...) }
func LogError(message string, v ...interface{}) { LogMessage("ERROR", message, v...) }

func LogHTTPError(r *http.Request, status int, err error) {
	LogError("HTTP %d error for %s %s from %s: %v", status, r.Method, r.URL.Path, GetClientIP(r), err)
}

// GetClientIP returns the host of the connection's remote address. Forwarded
// headers are client supplied and are not consulted here.
func GetClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
