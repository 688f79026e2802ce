package clocksync

import (
	"fmt"
	"io"
)

// infoWriter prints "#@key=value" lines and keeps the
// first write error.
type infoWriter struct {
	w   io.Writer
	err error
}

func (i *infoWriter) printf(key, format string, args ...interface{}) {
	if i.err != nil {
		return
	}
	_, i.err = fmt.Fprintf(i.w, "#@"+key+"="+format+"\n", args...)
}

func (i *infoWriter) str(key, value string) {
	i.printf(key, "%s", value)
}

func (i *infoWriter) int(key string, value int) {
	i.printf(key, "%d", value)
}

func (i *infoWriter) float(key string, value float64) {
	i.printf(key, "%.10f", value)
}
