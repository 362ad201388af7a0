package datasizes

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeRegex = regexp.MustCompile(`^(\d+)\s*([A-Za-z]*)$`)

var unitMultipliers = map[string]uint64{
	"":    1,
	"B":   1,
	"kB":  KiloByte,
	"KiB": KibiByte,
	"MB":  MegaByte,
	"MiB": MebiByte,
	"GB":  GigaByte,
	"GiB": GibiByte,
	"TB":  TeraByte,
	"TiB": TebiByte,
}

// Parse converts a size specified as a string in a human readable
// format (e.g. "64 MiB" or "4GB") to the number of bytes. A plain
// number is interpreted as bytes. Units are case sensitive.
func Parse(size string) (uint64, error) {
	trimmed := strings.TrimSpace(size)
	m := sizeRegex.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, fmt.Errorf("failed to parse size string: %s", size)
	}

	multiplier, ok := unitMultipliers[m[2]]
	if !ok {
		return 0, fmt.Errorf("unknown data size units in string: %s", size)
	}

	value, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse size value %q: %w", m[1], err)
	}
	if value > math.MaxUint64/multiplier {
		return 0, fmt.Errorf("size %s overflows 64 bits", size)
	}

	return value * multiplier, nil
}

// Format renders the given number of bytes using the largest binary unit
// that represents it exactly, e.g. 67108864 becomes "64 MiB".
func Format(size uint64) string {
	for _, u := range []struct {
		name string
		mul  uint64
	}{
		{"TiB", TiB},
		{"GiB", GiB},
		{"MiB", MiB},
		{"KiB", KiB},
	} {
		if size >= u.mul && size%u.mul == 0 {
			return fmt.Sprintf("%d %s", size/u.mul, u.name)
		}
	}
	return fmt.Sprintf("%d B", size)
}
