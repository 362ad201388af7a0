// Package experimentalflags reads developer toggles from the
// DUALBOOT_EXPERIMENTAL environment variable, a comma separated list of
// "name" or "name=value" items.
package experimentalflags

import (
	"os"
	"strconv"
	"strings"
)

const envKEY = "DUALBOOT_EXPERIMENTAL"

const (
	// OptBackend overrides the partition table backend ("cgpt" or
	// "diskfs").
	OptBackend = "backend"
	// OptNoProgress disables progress bars.
	OptNoProgress = "no-progress"
)

func experimentalOptions() map[string]string {
	expMap := map[string]string{}

	env := os.Getenv(envKEY)
	if env == "" {
		return expMap
	}

	for _, s := range strings.Split(env, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		l := strings.SplitN(s, "=", 2)
		switch len(l) {
		case 1:
			expMap[l[0]] = "true"
		case 2:
			expMap[l[0]] = l[1]
		}
	}

	return expMap
}

// Bool returns true if there is a boolean option with the given
// option name
func Bool(option string) bool {
	b, err := strconv.ParseBool(experimentalOptions()[option])
	if err != nil {
		// invalid or unset values are false
		return false
	}
	return b
}

func String(option string) string {
	return experimentalOptions()[option]
}
