package game

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseScore converts raw score input. Anything that is not a whole number is rejected.
func ParseScore(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%q: %w", raw, ErrInvalidScore)
	}
	return v, nil
}
