package docstore

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

type serverTimestamp struct{}

// ServerTimestamp is replaced by the commit timestamp (Unix milliseconds)
// when used as a field value in a written map.
var ServerTimestamp = serverTimestamp{}

// toFields converts written data into a field map, resolving server
// timestamps to ts. data is either a map[string]any or a msgpack-encodable
// struct.
func toFields(data any, ts int64) (map[string]any, error) {
	var fields map[string]any
	switch d := data.(type) {
	case nil:
		fields = map[string]any{}
	case map[string]any:
		fields = make(map[string]any, len(d))
		for k, v := range d {
			fields[k] = v
		}
	default:
		b, err := msgpack.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode document data: %w", err)
		}
		if err := msgpack.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("document data is not a map: %w", err)
		}
	}

	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			fields[k] = ts
			continue
		}
		fields[k] = normalize(v)
	}
	return fields, nil
}

// normalize folds the many integer and float types msgpack decodes into
// int64 and float64 so values compare predictably.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

func normalizeUint(x uint64) any {
	if x <= math.MaxInt64 {
		return int64(x)
	}
	return float64(x)
}

func normalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = normalize(v)
	}
	return out
}

// typeRank orders values of different types: null, booleans, numbers,
// strings, bytes, then everything else.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case string:
		return 3
	case []byte:
		return 4
	}
	return 5
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y)
		case float64:
			return cmp.Compare(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, float64(y))
		case float64:
			return cmp.Compare(x, y)
		}
	case string:
		return strings.Compare(x, b.(string))
	case []byte:
		return bytes.Compare(x, b.([]byte))
	}

	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
