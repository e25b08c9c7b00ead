// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logging configures the shared logrus logger, rotating log files and
// the gin request logging middleware.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName  = "assist.log"
	noRequestID  = "--------"
	fieldRequest = "request_id"
)

var (
	setupOnce sync.Once

	// outputs guards the rotating file and the gin pipes.
	outputs struct {
		sync.Mutex
		file     *lumberjack.Logger
		ginInfo  *io.PipeWriter
		ginError *io.PipeWriter
	}
)

// LogFormatter renders one line per entry:
//
//	[2026-10-19 09:00:00] [a1b2c3d4] [info ] [server.go:88] classified | backend=local, intent=create_event
//
// Fields other than the request id are appended in key order.
type LogFormatter struct{}

// Format implements logrus.Formatter.
func (m *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	buf := entry.Buffer
	if buf == nil {
		buf = &bytes.Buffer{}
	}

	reqID, _ := entry.Data[fieldRequest].(string)
	if reqID == "" {
		reqID = noRequestID
	}
	level := entry.Level.String()
	if entry.Level == log.WarnLevel {
		level = "warn"
	}

	fmt.Fprintf(buf, "[%s] [%s] [%-5s] ", entry.Time.Format("2006-01-02 15:04:05"), reqID, level)
	if entry.Caller != nil {
		fmt.Fprintf(buf, "[%s:%d] ", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	buf.WriteString(strings.TrimRight(entry.Message, "\r\n"))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != fieldRequest {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		buf.WriteString(" |")
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			fmt.Fprintf(buf, " %s=%v", k, entry.Data[k])
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// SetupBaseLogger installs the formatter and routes gin's writers through
// logrus. Only the first call has an effect.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})

		outputs.Lock()
		outputs.ginInfo = log.StandardLogger().Writer()
		outputs.ginError = log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DefaultWriter = outputs.ginInfo
		gin.DefaultErrorWriter = outputs.ginError
		outputs.Unlock()

		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			log.Debugf(strings.TrimRight(format, "\r\n"), values...)
		}
		log.RegisterExitHandler(CloseLogOutputs)
	})
}

// ConfigureLogOutput sets the level and sends logs either to stdout or to a
// rotating file under logDir (10 MB per file, five compressed backups).
func ConfigureLogOutput(loggingToFile bool, logDir string, debug bool) error {
	SetupBaseLogger()

	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if !loggingToFile {
		swapFile(nil)
		log.SetOutput(os.Stdout)
		return nil
	}

	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("logging: failed to create log directory: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFileName),
		MaxSize:    10,
		MaxBackups: 5,
		Compress:   true,
	}
	swapFile(file)
	log.SetOutput(file)
	return nil
}

// swapFile replaces the rotating writer, closing the previous one.
func swapFile(next *lumberjack.Logger) {
	outputs.Lock()
	defer outputs.Unlock()
	if outputs.file != nil {
		_ = outputs.file.Close()
	}
	outputs.file = next
}

// CloseLogOutputs closes the rotating writer and the gin pipes. It is also
// registered as a logrus exit handler.
func CloseLogOutputs() {
	outputs.Lock()
	defer outputs.Unlock()
	if outputs.file != nil {
		_ = outputs.file.Close()
	}
	if outputs.ginInfo != nil {
		_ = outputs.ginInfo.Close()
	}
	if outputs.ginError != nil {
		_ = outputs.ginError.Close()
	}
	outputs.file = nil
	outputs.ginInfo = nil
	outputs.ginError = nil
}
