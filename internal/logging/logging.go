package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// New constructs a slog.Logger writing to stdout at the given level in the
// given format ("json" or "text").
func New(level slog.Level, format string) (*slog.Logger, error) {
	handler, err := buildHandler(level, format)
	if err != nil {
		return nil, err
	}

	return slog.New(handler), nil
}

func buildHandler(level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json":
		return slog.NewJSONHandler(os.Stdout, opts), nil
	case "text":
		return slog.NewTextHandler(os.Stdout, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}
