// Package logging sets up the JSON logs shared by the healx server components
package logging

import (
	"io"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	cst "healx.io/healx/constants"
)

// serviceFormatter stamps every entry with the unix time in milliseconds and the service name
// before handing it to the wrapped formatter
type serviceFormatter struct {
	service string
	next    log.Formatter
}

func (f *serviceFormatter) Format(e *log.Entry) ([]byte, error) {
	// the entry is shared with other hooks, so fields go into a copy
	data := make(log.Fields, len(e.Data)+2)
	for k, v := range e.Data {
		data[k] = v
	}
	data["epochTimeMillis"] = e.Time.UnixNano() / int64(time.Millisecond)
	data["service"] = f.service
	stamped := *e
	stamped.Data = data
	return f.next.Format(&stamped)
}

// SetupLog routes logs of the named service to stdout. HEALX_VERBOSE turns on debug logs.
func SetupLog(service string) {
	setupLog(os.Stdout, service)
}

func setupLog(w io.Writer, service string) {
	log.SetOutput(w)
	log.SetFormatter(&serviceFormatter{
		service: service,
		next:    &log.JSONFormatter{DisableTimestamp: true},
	})
	level := log.InfoLevel
	if viper.GetBool(cst.EnvVerbose) {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

// WithFuncName returns an entry carrying the name of the calling function
func WithFuncName() *log.Entry {
	var name string
	if pc, _, _, ok := runtime.Caller(1); ok {
		fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
		name = fr.Function
	}
	return log.WithField(cst.LogFieldFuncName, name)
}
