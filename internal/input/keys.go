package input

import "strings"

// keysyms maps normalized key names onto X11 keysym names understood by xdotool.
var keysyms = map[string]string{
	"enter":       "Return",
	"esc":         "Escape",
	"tab":         "Tab",
	"space":       "space",
	"backspace":   "BackSpace",
	"delete":      "Delete",
	"insert":      "Insert",
	"home":        "Home",
	"end":         "End",
	"pageup":      "Prior",
	"pagedown":    "Next",
	"up":          "Up",
	"down":        "Down",
	"left":        "Left",
	"right":       "Right",
	"capslock":    "Caps_Lock",
	"printscreen": "Print",
	"ctrl":        "ctrl",
	"control":     "ctrl",
	"alt":         "alt",
	"shift":       "shift",
	"win":         "super",
	"cmd":         "super",
	"command":     "super",
	"menu":        "Menu",
	"plus":        "plus",
	"minus":       "minus",
}

// Keysym translates a normalized key name to an xdotool keysym.
// Function keys become F1..F24; single characters and unknown names are
// handed to xdotool unchanged so it can report them.
func Keysym(key string) string {
	if sym, ok := keysyms[key]; ok {
		return sym
	}
	if len(key) >= 2 && len(key) <= 3 && key[0] == 'f' && isDigits(key[1:]) {
		return "F" + key[1:]
	}
	return key
}

func isDigits(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}
