package render

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Normalize converts v into a tree of JSON-native values. Identifiers,
// timestamps, patterns and other opaque values become their canonical
// string form; nested sequences and mappings are converted recursively and
// mapping keys are stringified. A nil mapping key is an error, a nil value
// is kept as nil.
func Normalize(v any) (any, error) {
	return normalize(v, "$")
}

func normalize(v any, path string) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil, nil
		}
	}

	switch x := v.(type) {
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, []byte:
		return x, nil
	case time.Time:
		return FormatTimestamp(x), nil
	case time.Duration:
		return x.String(), nil
	case uuid.UUID:
		return x.String(), nil
	case *regexp.Regexp:
		return x.String(), nil
	case proto.Message:
		b, err := protojson.Marshal(x)
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return nil, &Error{Path: path, Err: err}
		}
		return decoded, nil
	case json.Marshaler:
		return x, nil
	case error:
		return x.Error(), nil
	case fmt.Stringer:
		return x.String(), nil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return normalize(rv.Elem().Interface(), path)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			item, err := normalize(rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := mapKey(iter.Key(), path)
			if err != nil {
				return nil, err
			}
			val, err := normalize(iter.Value().Interface(), path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool, reflect.Struct,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func mapKey(k reflect.Value, path string) (string, error) {
	if k.Kind() == reflect.Interface || k.Kind() == reflect.Pointer {
		if k.IsNil() {
			return "", &Error{Path: path, Err: ErrNilKey}
		}
	}
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	nk, err := normalize(k.Interface(), path)
	if err != nil {
		return "", err
	}
	if s, ok := nk.(string); ok {
		return s, nil
	}
	return fmt.Sprint(nk), nil
}
