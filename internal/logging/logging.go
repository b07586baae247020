package logging

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/m-mizutani/masq"
	"github.com/mattn/go-isatty"
)

// Output format names accepted by [New].
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Matches URLs carrying user info, as used for private package indexes.
var credentialURLPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.\-]*://[^/\s:@]+:[^/\s@]+@`)

// Configures an output handler.
type Options struct {
	Level   slog.Leveler // Minimum level. Nil means info.
	Format  string       // FormatText or FormatJSON. Empty means text.
	Verbose bool         // Include source locations and timestamps in text output.
	Writer  io.Writer    // Destination. Nil means os.Stderr.
}

// Creates an output handler with credential redaction.
//
// Text output written to a terminal omits timestamps unless verbose output
// is requested; JSON output always includes them.
func New(opts Options) slog.Handler {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	redact := newRedactAttr()
	terminal := isTerminal(w)

	hopts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.Verbose,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey && terminal && !opts.Verbose && opts.Format != FormatJSON {
				return slog.Attr{}
			}
			return redact(groups, a)
		},
	}

	if opts.Format == FormatJSON {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

// Converts a level name to a [slog.Level].
//
// Accepts "debug", "info", "warn" and "error" in any case. Unrecognized
// values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Returns a masq-powered ReplaceAttr function.
func newRedactAttr() func([]string, slog.Attr) slog.Attr {
	return masq.New(
		masq.WithFieldName("password"),
		masq.WithFieldName("token"),
		masq.WithFieldName("secret"),
		masq.WithFieldPrefix("secret_"),
		masq.WithFieldPrefix("api_key"),
		masq.WithRegex(credentialURLPattern),
	)
}

// Whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
