package computeruse

import "strings"

// keyAliases maps alternative key names onto the canonical ones.
var keyAliases = map[string]string{
	"return":  "enter",
	"escape":  "esc",
	"super":   "win",
	"windows": "win",
	"meta":    "win",
	"control": "ctrl",
	"option":  "alt",
	"del":     "delete",
	"pgup":    "pageup",
	"pgdn":    "pagedown",
}

// NormalizeKeys splits a combination such as "Ctrl+Shift+Escape" into
// lowercase canonical key names. Empty segments are dropped.
func NormalizeKeys(combo string) []string {
	var keys []string
	for _, part := range strings.Split(combo, "+") {
		key := strings.ToLower(strings.TrimSpace(part))
		if key == "" {
			continue
		}
		if alias, ok := keyAliases[key]; ok {
			key = alias
		}
		keys = append(keys, key)
	}
	return keys
}
