package logging

import (
	log "github.com/sirupsen/logrus"
)

type UTCFormatter struct {
	log.Formatter
}

func (u UTCFormatter) Format(e *log.Entry) ([]byte, error) {
	e.Time = e.Time.UTC()
	return u.Formatter.Format(e)
}

// Init configures the global logrus logger. Unknown levels fall back to info.
func Init(level string, debug bool) {
	log.SetFormatter(UTCFormatter{&log.TextFormatter{DisableColors: true, FullTimestamp: true}})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	if debug {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)
}
