package persist

import (
	"fmt"
	"log"
	"os"

	"github.com/saunafs/chunkserver-storage/build"
)

// Logger wraps the standard library logger with Critical/Severe helpers,
// mirroring the teacher's own persist.Logger: most of this engine's
// background loops only ever become observable through logged output, so
// Critical/Severe give callers a single place to both log and crash (in
// debug builds) on an invariant violation.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewFileLogger returns a Logger that writes to the file at path, creating
// it (and appending to it) if necessary.
func NewFileLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, build.ExtendErr("unable to open log file", err)
	}
	return &Logger{
		Logger: log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		file:   f,
	}, nil
}

// Close flushes and closes the underlying log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Critical logs a message indicating an internal invariant was violated and
// panics in debug builds. It should never be reached by normal operator
// error.
func (l *Logger) Critical(v ...interface{}) {
	l.Output(2, "CRITICAL: "+fmt.Sprintln(v...))
	build.Critical(v...)
}

// Severe logs a message indicating a serious but non-corrupting problem
// (typically a disk failure) and panics in debug builds.
func (l *Logger) Severe(v ...interface{}) {
	l.Output(2, "SEVERE: "+fmt.Sprintln(v...))
	build.Severe(v...)
}
