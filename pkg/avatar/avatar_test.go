package avatar

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorForIDIsStable(t *testing.T) {
	a := ColorForID("user-123")
	b := ColorForID("user-123")
	assert.Equal(t, a, b)
	assert.Regexp(t, regexp.MustCompile(`^hsl\(\d+ 70% 50%\)$`), a)
}

func TestColorForIDDiffersAcrossIDs(t *testing.T) {
	assert.NotEqual(t, ColorForID("user-a"), ColorForID("user-b"))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "CO", Initials("Calm Otter"))
	assert.Equal(t, "B", Initials("Brisk"))
	assert.Equal(t, "?", Initials(""))
	assert.Equal(t, "SW", Initials("Sunny Whale Extra"))
}
