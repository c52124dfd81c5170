// Package provider verifies identity tokens issued by Google and Apple.
//
// Every rejection is a *model.ProviderError, which matches
// model.ErrProviderVerificationFailed. The reason it carries is meant for
// server logs and must not reach clients.
package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const defaultHTTPTimeout = 5 * time.Second

// flexBool decodes booleans that providers send either as JSON booleans or as
// the strings "true"/"false".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid boolean %q: %w", s, err)
		}
		*b = flexBool(v)
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}

// flexInt64 decodes integers sent either as JSON numbers or as decimal strings.
type flexInt64 int64

func (n *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", data, err)
	}
	*n = flexInt64(v)
	return nil
}
