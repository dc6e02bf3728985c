package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Render converts a publish value into its payload text.
//
// Strings and byte slices pass through unchanged, fmt.Stringer values use
// String, booleans and numbers use their strconv form. Everything else,
// including nil, is JSON encoded. Values that cannot be encoded (channels,
// functions, NaN or infinite floats) return ErrSerialization.
func Render(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return renderStringer(v)
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return renderFloat(float64(v), 32)
	case float64:
		return renderFloat(v, 64)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return string(data), nil
}

// renderStringer turns a panicking String, typically a nil pointer
// receiver, into ErrSerialization.
func renderStringer(v fmt.Stringer) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %T.String: %v", ErrSerialization, v, r)
		}
	}()
	return v.String(), nil
}

func renderFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: non-finite number %v", ErrSerialization, f)
	}
	return strconv.FormatFloat(f, 'f', -1, bits), nil
}
