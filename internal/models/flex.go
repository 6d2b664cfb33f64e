package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// FlexInt decodes a JSON number or numeric string. Anything else, including
// fractions, decodes to zero rather than failing the surrounding payload.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = 0
	s := string(bytes.TrimSpace(b))
	if s == "" || s == "null" {
		return nil
	}
	if s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return nil
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return nil
	}
	*f = FlexInt(v)
	return nil
}

// Int returns the value as an int.
func (f FlexInt) Int() int { return int(f) }

// Ptr returns nil for a nil receiver, else a pointer to the int value.
func (f *FlexInt) Ptr() *int {
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}

var errNotScalar = errors.New("expected a scalar value")

// FlexString decodes a JSON string, number or bool into its text form. null decodes to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	*f = ""
	s := string(bytes.TrimSpace(b))
	switch {
	case s == "" || s == "null":
		return nil
	case s[0] == '"':
		var out string
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
		*f = FlexString(out)
	case s[0] == '{' || s[0] == '[':
		return errNotScalar
	default:
		*f = FlexString(s)
	}
	return nil
}

// String returns the text.
func (f FlexString) String() string { return string(f) }

// Ptr returns nil for a nil receiver or empty text, else a pointer to the text.
func (f *FlexString) Ptr() *string {
	if f == nil || *f == "" {
		return nil
	}
	v := string(*f)
	return &v
}
