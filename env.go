package secheaders

import (
	"os"
	"strings"
)

var (
	TruthyValues = []string{"1", "yes", "true", "on"}  // TruthyValues are the environment values read as true, and can be changed.
	FalsyValues  = []string{"0", "no", "false", "off"} // FalsyValues are the environment values read as false, and can be changed.
)

// environ snapshots the process environment with lower-cased keys, so lookups are case-insensitive.
func environ() map[string]string {
	envMap := map[string]string{}
	for _, entry := range os.Environ() {
		key, val, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		envMap[strings.ToLower(key)] = val
	}
	return envMap
}

// envVal returns the trimmed value for key, and false if it isn't set or is blank.
func envVal(envMap map[string]string, key string) (string, bool) {
	val, ok := envMap[strings.ToLower(key)]
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, len(val) > 0
}

// parseBool interprets val with [TruthyValues] and [FalsyValues], compared case-insensitive.
func parseBool(val string) (value bool, ok bool) {
	val = strings.ToLower(strings.TrimSpace(val))
	for _, t := range TruthyValues {
		if val == strings.ToLower(t) {
			return true, true
		}
	}
	for _, f := range FalsyValues {
		if val == strings.ToLower(f) {
			return false, true
		}
	}
	return false, false
}
