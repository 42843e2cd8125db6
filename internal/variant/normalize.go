package variant

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Default         = "default"
	RadioBackground = "radio-background"
)

var ErrUnknownVariant = errors.New("unknown emulator variant")

// Names lists the canonical variant names.
func Names() []string {
	return []string{Default, RadioBackground}
}

// Normalize canonicalizes variant names and their common aliases. Unknown
// names are returned in normalized form.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return Default
	}
	if canonical, ok := canonicalName(strings.TrimSuffix(normalized, "-emulator")); ok {
		return canonical
	}
	return normalized
}

// Parse returns the canonical variant name or ErrUnknownVariant listing the
// supported names.
func Parse(name string) (string, error) {
	normalized := Normalize(name)
	if _, ok := canonicalName(normalized); !ok {
		return "", fmt.Errorf("%w: %q, must be one of %v", ErrUnknownVariant, name, Names())
	}
	return normalized, nil
}

func canonicalName(alias string) (string, bool) {
	switch alias {
	case "default", "21cmemu":
		return Default, true
	case "radio-background", "radio":
		return RadioBackground, true
	}

	compact := strings.ReplaceAll(alias, "-", "")
	switch compact {
	case "default", "21cmemu", "py21cmemu":
		return Default, true
	case "radiobackground", "radio", "radiobg":
		return RadioBackground, true
	default:
		return "", false
	}
}
