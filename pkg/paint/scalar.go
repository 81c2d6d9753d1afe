package paint

import (
	"fmt"
	"strconv"
	"strings"
)

// parseScalar reads a numeric CSS value, tolerating a trailing unit suffix
// such as "2px".
func parseScalar(value string) (float64, error) {
	v := strings.TrimSpace(value)
	end := len(v)
	for end > 0 {
		c := v[end-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		end--
	}
	if end == 0 {
		return 0, fmt.Errorf("not a numeric value: %q", value)
	}
	return strconv.ParseFloat(v[:end], 64)
}
