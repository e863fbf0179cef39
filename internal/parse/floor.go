package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	basementRe = regexp.MustCompile(`(?i)^(?:B|basement\s*|地下)\s*(\d+)\s*(?:F|层)?$`)
	levelRe    = regexp.MustCompile(`(?i)^(?:L|level\s*|floor\s*)?\s*(\d+)\s*(?:F|层|st|nd|rd|th)?(?:\s*floor)?$`)
	groundRe   = regexp.MustCompile(`(?i)^(?:G|GF|ground(?:\s*floor)?)$`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// FloorNumber extracts the floor number from a floor label such as "2F", "3层", "Level 4", "B1" or "Ground".
// Basements are negative, ground is 0.
func FloorNumber(label string) (int, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(label, " "))

	if groundRe.MatchString(s) {
		return 0, nil
	}
	if m := basementRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return -n, nil
		}
	}
	if m := levelRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unable to parse floor number from label: %q", label)
}
