// ABOUTME: Resolves user supplied device identifiers to enumerated devices
// ABOUTME: Tiers: exact id, exact name, substring, fuzzy; real devices before loopback
package match

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
)

// Resolve finds the device the identifier refers to. Strings are matched
// against IDs and then names; integers only against IDs.
func Resolve(identifier any, candidates []audio.Device) (audio.Device, error) {
	id, isString, err := normalize(identifier)
	if err != nil {
		return audio.Device{}, err
	}

	real, loopback := partition(candidates)

	if d, ok := first(real, loopback, func(d audio.Device) bool { return d.ID == id }); ok {
		return d, nil
	}
	if !isString {
		return audio.Device{}, &audio.NotFoundError{Identifier: identifier}
	}

	if d, ok := first(real, loopback, func(d audio.Device) bool { return d.Name == id }); ok {
		return d, nil
	}
	if d, ok := first(real, loopback, func(d audio.Device) bool { return strings.Contains(d.Name, id) }); ok {
		return d, nil
	}

	pattern := Fuzzy(id)
	if d, ok := first(real, loopback, func(d audio.Device) bool { return pattern.MatchString(d.Name) }); ok {
		return d, nil
	}

	return audio.Device{}, &audio.NotFoundError{Identifier: identifier}
}

// WithoutLoopback drops loopback devices from a candidate list
func WithoutLoopback(candidates []audio.Device) []audio.Device {
	out := make([]audio.Device, 0, len(candidates))
	for _, d := range candidates {
		if !d.IsLoopback {
			out = append(out, d)
		}
	}
	return out
}

// Fuzzy builds the pattern that matches names containing every character
// of s in order, with anything in between.
func Fuzzy(s string) *regexp.Regexp {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return regexp.MustCompile(strings.Join(parts, ".*"))
}

func normalize(identifier any) (string, bool, error) {
	switch v := identifier.(type) {
	case string:
		return v, true, nil
	case int:
		return strconv.FormatInt(int64(v), 10), false, nil
	case int8:
		return strconv.FormatInt(int64(v), 10), false, nil
	case int16:
		return strconv.FormatInt(int64(v), 10), false, nil
	case int32:
		return strconv.FormatInt(int64(v), 10), false, nil
	case int64:
		return strconv.FormatInt(v, 10), false, nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), false, nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), false, nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), false, nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), false, nil
	case uint64:
		return strconv.FormatUint(v, 10), false, nil
	default:
		return "", false, audio.NewFormatError(fmt.Sprintf("device identifier must be a string or integer, not %T", identifier))
	}
}

func partition(candidates []audio.Device) (real, loopback []audio.Device) {
	for _, d := range candidates {
		if d.IsLoopback {
			loopback = append(loopback, d)
		} else {
			real = append(real, d)
		}
	}
	return real, loopback
}

func first(real, loopback []audio.Device, pred func(audio.Device) bool) (audio.Device, bool) {
	for _, group := range [][]audio.Device{real, loopback} {
		for _, d := range group {
			if pred(d) {
				return d, true
			}
		}
	}
	return audio.Device{}, false
}
