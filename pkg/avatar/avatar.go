// Package avatar derives presentation attributes from a user id.
package avatar

import (
	"fmt"
	"strings"
)

// ColorForID hashes a user id to a stable display hue. The same id always
// maps to the same color on every instance.
func ColorForID(id string) string {
	var hash int32
	for _, c := range id {
		hash = (hash << 5) - hash + int32(c)
	}
	if hash < 0 {
		hash = -hash
	}
	hue := hash % 360
	return fmt.Sprintf("hsl(%d 70%% 50%%)", hue)
}

// Initials shortens a display name to at most two uppercase letters, one per
// word.
func Initials(name string) string {
	if name == "" {
		return "?"
	}
	var initials []rune
	for _, word := range strings.Fields(name) {
		r := []rune(word)[0]
		initials = append(initials, r)
		if len(initials) == 2 {
			break
		}
	}
	if len(initials) == 0 {
		return "?"
	}
	return strings.ToUpper(string(initials))
}
