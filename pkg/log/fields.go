package log

import (
	"fmt"
	"time"
)

// ErrorKey is the field name used by Err and WithError.
const ErrorKey = "error"

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field from an arbitrary value.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Str builds a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 builds an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 builds a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Bool builds a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur builds a duration field rendered as a Go duration string.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Any builds a field whose value is formatted with %v by text formatters.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err builds an error field. A nil error yields an empty value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: ErrorKey, Value: ""}
	}
	return Field{Key: ErrorKey, Value: err.Error()}
}

// Component tags entries with the emitting component.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Operation tags entries with the operation in progress.
func Operation(name string) Field { return Field{Key: OperationKey, Value: name} }

// Path tags entries with a file path.
func Path(p string) Field { return Field{Key: PathKey, Value: p} }

func (f Field) String() string { return fmt.Sprintf("%s=%v", f.Key, f.Value) }
