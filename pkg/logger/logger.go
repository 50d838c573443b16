package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

// New returns a stdlib-backed logger with component prefix writing to w
// (stdout when nil). Used where a library wants a Println-style logger.
func New(component string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stdout
	}
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(w, prefix, log.LstdFlags|log.Lmsgprefix)
}
