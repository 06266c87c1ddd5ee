package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field is a typed structured-logging attribute.
type Field struct {
	k     string
	v     interface{}
	addTo func(*zerolog.Event)
}

func (f Field) key() string        { return f.k }
func (f Field) value() interface{} { return f.v }

func String(key, value string) Field {
	return Field{k: key, v: value, addTo: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Int(key string, value int) Field {
	return Field{k: key, v: value, addTo: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{k: key, v: value, addTo: func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Uint64(key string, value uint64) Field {
	return Field{k: key, v: value, addTo: func(e *zerolog.Event) { e.Uint64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{k: key, v: value, addTo: func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{k: key, v: value, addTo: func(e *zerolog.Event) { e.Bool(key, value) }}
}

func Duration(key string, value time.Duration) Field {
	return Field{k: key, v: value.String(), addTo: func(e *zerolog.Event) { e.Dur(key, value) }}
}

func Error(err error) Field {
	var v interface{}
	if err != nil {
		v = err.Error()
	}
	return Field{k: "error", v: v, addTo: func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, value interface{}) Field {
	return Field{k: key, v: value, addTo: func(e *zerolog.Event) { e.Interface(key, value) }}
}

func Strings(key string, values []string) Field {
	return String(key, strings.Join(values, ", "))
}
