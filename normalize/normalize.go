// Package normalize converts engine-native scalars into JSON-safe values.
//
// Rules are applied per scalar in a fixed order:
//
//  1. integers beyond ±(2^53-1) become decimal strings
//  2. time values become RFC 3339 strings with nanoseconds, in UTC
//  3. byte slices, Stringers, errors and TextMarshalers become their text;
//     NaN and infinities become their string form; other composites fall
//     back to fmt.Sprint
//  4. everything else passes through unchanged
//
// Normalization is total: a panicking String method or a pointer chain
// that never ends yields Unprintable.
package normalize

import (
	"encoding"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"time"
)

const (
	// MaxSafeInteger is the largest integer a float64 represents exactly
	MaxSafeInteger = 1<<53 - 1
	// MinSafeInteger is the smallest integer a float64 represents exactly
	MinSafeInteger = -MaxSafeInteger

	// Unprintable replaces values whose text conversion panicked and
	// pointer chains too deep to follow
	Unprintable = "<unprintable>"

	maxPointerDepth = 32
)

var (
	maxSafeBig = big.NewInt(MaxSafeInteger)
	minSafeBig = big.NewInt(MinSafeInteger)
)

// Value normalizes a single scalar
func Value(v any) (out any) {
	defer func() {
		if recover() != nil {
			out = Unprintable
		}
	}()

	switch x := v.(type) {
	case nil, bool, string:
		return x
	case int:
		return intValue(int64(x), x)
	case int8, int16, int32, uint8, uint16:
		return x
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return floatValue(float64(x))
		}
		return x
	case int64:
		return intValue(x, x)
	case uint:
		return uintValue(uint64(x), x)
	case uint32:
		return x
	case uint64:
		return uintValue(x, x)
	case float64:
		return floatValue(x)
	case *big.Int:
		if x == nil {
			return nil
		}
		return bigValue(x)
	case big.Int:
		return bigValue(&x)
	case time.Time:
		return formatTime(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return formatTime(*x)
	case []byte:
		return string(x)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	case encoding.TextMarshaler:
		text, err := x.MarshalText()
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(text)
	}

	return fallback(v)
}

// Row normalizes one row into a new slice
func Row(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = Value(v)
	}
	return out
}

// Rows normalizes every row into new slices
func Rows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = Row(r)
	}
	return out
}

func intValue(n int64, orig any) any {
	if n > MaxSafeInteger || n < MinSafeInteger {
		return strconv.FormatInt(n, 10)
	}
	return orig
}

func uintValue(n uint64, orig any) any {
	if n > MaxSafeInteger {
		return strconv.FormatUint(n, 10)
	}
	return orig
}

func bigValue(n *big.Int) any {
	if n.Cmp(maxSafeBig) > 0 || n.Cmp(minSafeBig) < 0 {
		return n.String()
	}
	return n.Int64()
}

func floatValue(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// fallback handles named scalar kinds by their underlying value and
// stringifies every other composite.
func fallback(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intValue(rv.Int(), rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintValue(rv.Uint(), rv.Uint())
	case reflect.Float32, reflect.Float64:
		return floatValue(rv.Float())
	case reflect.Pointer, reflect.Interface:
		for depth := 0; rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface; depth++ {
			if rv.IsNil() {
				return nil
			}
			if depth == maxPointerDepth {
				return Unprintable
			}
			rv = rv.Elem()
		}
		return Value(rv.Interface())
	}
	return fmt.Sprint(v)
}
