package jukebox

import (
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// envelope is the {ok, message, data} wrapper every endpoint returns.
// Field names match Pascal-case and camelCase keys alike.
type envelope struct {
	OK      bool   `mapstructure:"Ok"`
	Message string `mapstructure:"Message"`
	Data    any    `mapstructure:"Data"`
}

// timeLayouts are tried in order when decoding timestamps.
// Offset-less layouts are interpreted as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// stringToTimeHook decodes server timestamps into time.Time.
func stringToTimeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) || from.Kind() != reflect.String {
		return data, nil
	}

	s := strings.TrimSpace(data.(string))
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return nil, errors.Newf("unrecognized timestamp %q", s)
}

// decode maps a loosely typed JSON value onto out. Key matching is
// case-insensitive and scalar types are converted where possible.
func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringToTimeHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := dec.Decode(input); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// unwrap decodes the envelope of a payload. A nil payload yields a not-ok envelope.
func unwrap(payload any) (envelope, error) {
	var env envelope
	if payload == nil {
		return env, nil
	}
	if _, ok := payload.(map[string]any); !ok {
		return env, errors.Newf("unexpected response shape: %T", payload)
	}
	if err := decode(payload, &env); err != nil {
		return env, err
	}
	return env, nil
}
