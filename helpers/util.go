package helpers

import (
	"errors"
	"strings"
)

// SplitPair splits target on separate and requires exactly two parts
func SplitPair(target string, separate string) (string, string, error) {
	parts := strings.Split(target, separate)
	if len(parts) != 2 {
		return "", "", errors.New("expected exactly two parts")
	}
	return parts[0], parts[1], nil
}

// Truncate cuts s to at most n characters (runes, not bytes)
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
