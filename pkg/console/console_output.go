// Package console renders zerolog events as colored, human readable lines.
package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DebugEnv enables stack traces and raw event dumps when set
const DebugEnv = "HENGE_DEBUG"

// ConsoleWriter is a zerolog.LevelWriter-compatible io.Writer which turns JSON log events into
// colorstring formatted lines.
type ConsoleWriter struct {
	Out   io.Writer
	color colorstring.Colorize

	buffer strings.Builder
	lock   sync.Mutex
}

// NewConsoleWriter creates a writer printing to stderr
func NewConsoleWriter(color bool) *ConsoleWriter {
	return NewConsoleWriterTo(os.Stderr, color)
}

// NewConsoleWriterTo creates a writer printing to out
func NewConsoleWriterTo(out io.Writer, color bool) *ConsoleWriter {
	return &ConsoleWriter{
		Out: out,
		color: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !color,
			Reset:   true,
		},
	}
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	sub, _ := evt["sub"].(bool)

	w.buffer.Reset()
	switch evt["level"] {
	case "fatal", "error":
		w.buffer.WriteString("[red][bold]==> Error:[reset] ")
	case "warn":
		w.buffer.WriteString("[yellow][bold]==>[reset] ")
	case "debug", "trace":
		w.buffer.WriteString("[dark_gray]  -> ")
	default:
		if sub {
			w.buffer.WriteString("[green][bold]  ->[reset] ")
		} else {
			w.buffer.WriteString("[blue][bold]==>[reset] ")
		}
	}

	if msg, ok := evt["message"].(string); ok {
		w.buffer.WriteString(msg)
	}

	errorDetails, ok := evt["error"]
	if ok {
		w.buffer.WriteString("\n")
		w.buffer.WriteString(fmt.Sprint(errorDetails))
	}

	if os.Getenv(DebugEnv) != "" {
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		w.buffer.WriteString("\n")
		for _, name := range names {
			w.buffer.WriteString(fmt.Sprintf("  %s: %+v\n", name, evt[name]))
		}
	}

	w.buffer.WriteString("[reset]\n")
	_, err = io.WriteString(w.Out, w.color.Color(w.buffer.String()))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv(DebugEnv) != "")
	}
}
