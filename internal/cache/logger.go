package cache

import (
	"context"
	"log/slog"

	"github.com/LavishGent/imgcache/internal/types"
)

// NewLogger bridges a caller-supplied types.Logger into slog.
// A nil logger yields slog.Default().
func NewLogger(l types.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return slog.New(slogAdapter{logger: l})
}

//nolint:govet // Simple adapter struct - alignment optimization minimal
type slogAdapter struct {
	attrs  []slog.Attr
	logger types.Logger
	group  string
}

func (a slogAdapter) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

//nolint:gocritic // slog.Handler interface requires passing Record by value
func (a slogAdapter) Handle(ctx context.Context, r slog.Record) error {
	args := make([]any, 0, (len(a.attrs)+r.NumAttrs())*2)

	for _, attr := range a.attrs {
		args = append(args, a.qualify(attr.Key), attr.Value.Any())
	}
	r.Attrs(func(attr slog.Attr) bool {
		args = append(args, a.qualify(attr.Key), attr.Value.Any())
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		a.logger.Error(r.Message, args...)
	case r.Level >= slog.LevelWarn:
		a.logger.Warn(r.Message, args...)
	case r.Level >= slog.LevelInfo:
		a.logger.Info(r.Message, args...)
	default:
		a.logger.Debug(r.Message, args...)
	}
	return nil
}

func (a slogAdapter) qualify(key string) string {
	if a.group == "" {
		return key
	}
	return a.group + "." + key
}

func (a slogAdapter) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(a.attrs), len(a.attrs)+len(attrs))
	copy(newAttrs, a.attrs)
	newAttrs = append(newAttrs, attrs...)
	return slogAdapter{
		logger: a.logger,
		attrs:  newAttrs,
		group:  a.group,
	}
}

func (a slogAdapter) WithGroup(name string) slog.Handler {
	newGroup := name
	if a.group != "" {
		newGroup = a.group + "." + name
	}
	return slogAdapter{
		logger: a.logger,
		attrs:  a.attrs,
		group:  newGroup,
	}
}
