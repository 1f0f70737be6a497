// Package logging provides the rotated local log file the Status Reporter
// writes its always-on snapshot log to (lumberjack, grounded in the
// teacher's otlpfile package, which uses the same lumberjack.Logger-as-
// io.Writer shape for output that needs to persist across restarts without
// growing unbounded).
package logging

import "gopkg.in/natefinch/lumberjack.v2"

// NewRotatingWriter returns an io.Writer that appends to path, rotating when
// the file exceeds maxSizeMB and keeping at most maxBackups old copies
// (gzip-compressed when compress is true). Used by the status reporter for its always-on local log of
// periodic snapshots (§4.6).
func NewRotatingWriter(path string, maxSizeMB, maxBackups int, compress bool) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   compress,
	}
}
