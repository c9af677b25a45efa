package host

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// EnvironmentBlock renders env as a native UTF-16 environment block: one
// KEY=VALUE entry per key, each NUL-terminated, the block ending in a second
// NUL. Keys are sorted. A nil or empty map yields nil, meaning "inherit".
func EnvironmentBlock(env map[string]string) ([]uint16, error) {
	if len(env) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(env))

	for key, value := range env {
		err := checkEnvEntry(key, value)
		if err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	slices.Sort(keys)

	block := make([]uint16, 0, len(keys)*envEntryGuess)

	for _, key := range keys {
		block = append(block, utf16.Encode([]rune(key+"="+env[key]))...)
		block = append(block, 0)
	}

	return append(block, 0), nil
}

func checkEnvEntry(key, value string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: blank key", ErrInvalidEnvironment)
	case strings.Contains(key[1:], "="):
		return fmt.Errorf("%w: key %q contains '='", ErrInvalidEnvironment, key)
	case strings.ContainsRune(key, 0), strings.ContainsRune(value, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidEnvironment, key)
	default:
		return nil
	}
}

// unexported constants.
const (
	envEntryGuess = 32
)
