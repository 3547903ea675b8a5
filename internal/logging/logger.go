package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// New builds the service logger. Output goes to stdout unless filePath is
// set; a path without an extension gets a dated .log suffix. The file stays
// open for the life of the process.
func New(level, filePath string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var target io.Writer = os.Stdout
	if filePath != "" {
		path := filePath
		if filepath.Ext(filePath) == "" {
			path = filePath + time.Now().Format("-2006-01-02") + ".log"
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o664)
		if err != nil {
			return zerolog.Logger{}, err
		}
		target = file
	}
	return NewWithWriter(target, lvl), nil
}

func NewWithWriter(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
