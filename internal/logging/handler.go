// Package logging provides slog handlers that persist records to the logs
// table and write the SafeHome line format.
package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

// LevelCritical is above slog.LevelError and maps to the CRITICAL log level.
const LevelCritical = slog.Level(12)

// StorageLevel maps a slog level onto the five stored severities.
func StorageLevel(l slog.Level) storage.Level {
	switch {
	case l < slog.LevelInfo:
		return storage.LevelDebug
	case l < slog.LevelWarn:
		return storage.LevelInfo
	case l < slog.LevelError:
		return storage.LevelWarning
	case l < LevelCritical:
		return storage.LevelError
	default:
		return storage.LevelCritical
	}
}

// SlogLevel is the inverse of StorageLevel.
func SlogLevel(l storage.Level) slog.Level {
	switch l {
	case storage.LevelDebug:
		return slog.LevelDebug
	case storage.LevelWarning:
		return slog.LevelWarn
	case storage.LevelError:
		return slog.LevelError
	case storage.LevelCritical:
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// ReplaceLevel renders LevelCritical as "CRITICAL" in slog's built-in
// handlers. Use it as HandlerOptions.ReplaceAttr.
func ReplaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if l, ok := a.Value.Any().(slog.Level); ok && l >= LevelCritical {
			a.Value = slog.StringValue("CRITICAL")
		}
	}
	return a
}

// source is the caller location of a record.
type source struct {
	file     string
	function string
	line     int
}

func sourceOf(pc uintptr) source {
	if pc == 0 {
		return source{}
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	fn := frame.Function
	if i := strings.LastIndex(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return source{file: filepath.Base(frame.File), function: fn, line: frame.Line}
}

// attrState carries the attributes and group prefix added with WithAttrs
// and WithGroup. Both handlers render attributes as key=value pairs.
type attrState struct {
	prefix string
	attrs  []string
}

func (s attrState) withAttrs(as []slog.Attr) attrState {
	next := attrState{prefix: s.prefix, attrs: append([]string(nil), s.attrs...)}
	for _, a := range as {
		next.attrs = appendAttr(next.attrs, s.prefix, a)
	}
	return next
}

func (s attrState) withGroup(name string) attrState {
	if name == "" {
		return s
	}
	return attrState{prefix: s.prefix + name + ".", attrs: s.attrs}
}

func appendAttr(dst []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			dst = appendAttr(dst, p, ga)
		}
		return dst
	}

	var v string
	switch a.Value.Kind() {
	case slog.KindTime:
		v = a.Value.Time().Format(time.DateTime)
	default:
		v = a.Value.String()
	}
	if strings.ContainsAny(v, " \t\n\"=") {
		v = fmt.Sprintf("%q", v)
	}
	return append(dst, prefix+a.Key+"="+v)
}

// message returns the record message followed by every attribute.
func (s attrState) message(r slog.Record) string {
	parts := s.attrs
	if r.NumAttrs() > 0 {
		parts = append([]string(nil), s.attrs...)
		r.Attrs(func(a slog.Attr) bool {
			parts = appendAttr(parts, s.prefix, a)
			return true
		})
	}
	if len(parts) == 0 {
		return r.Message
	}
	return r.Message + " " + strings.Join(parts, " ")
}
