package cmds

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. The auto format writes
// console output when w is a terminal and JSON otherwise.
func InitLogger(level, format string, withCaller bool, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}

	var console bool
	switch format {
	case "console":
		console = true
	case "json":
	case "auto", "":
		console = isTerminal(w)
	default:
		return errors.Errorf("invalid log format %q", format)
	}

	out := w
	if console {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	ctx := zerolog.New(out).With().Timestamp()
	if withCaller {
		ctx = ctx.Caller()
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = ctx.Logger()
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
