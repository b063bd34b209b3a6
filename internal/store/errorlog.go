package store

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// errorLogFile is the error log's name under the data directory.
const errorLogFile = "errors.log"

// errorEntry is one JSON line in the error log.
type errorEntry struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"ts"`
	Operation string         `json:"operation"`
	Error     string         `json:"error"`
	Context   map[string]any `json:"context,omitempty"`
}

// errorLog appends operation failures to a rotating file under the data
// directory. Every append is best effort: a store that cannot record its own
// failures must still serve reads and writes, so all errors here are
// swallowed.
type errorLog struct {
	out *lumberjack.Logger
}

func newErrorLog(dataDir string) *errorLog {
	return &errorLog{
		out: &lumberjack.Logger{
			Filename:   filepath.Join(dataDir, errorLogFile),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		},
	}
}

// append writes one entry. Failures to log are swallowed.
func (l *errorLog) append(operation string, err error, context map[string]any) {
	entry := errorEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: operation,
		Context:   context,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	data, merr := json.Marshal(entry)
	if merr != nil {
		return
	}
	_, _ = l.out.Write(append(data, '\n'))
}

func (l *errorLog) close() error {
	return l.out.Close()
}
