package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	assert.Equal(t, TypeContent, Kind([]byte(`{"type":"content","title":"T"}`)))
	assert.Equal(t, "", Kind([]byte(`not json`)), "malformed data has no kind")
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	_, err := DecodeContent([]byte(`{"type":"deleted","id":"x"}`))
	require.Error(t, err)

	m, err := DecodeContent([]byte(`{"type":"content","title":"T","content":"C","updatedAt":5,"clientTs":6,"userId":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, "T", m.Title)
	assert.Equal(t, int64(6), m.ClientTs)
	assert.Equal(t, "u1", m.UserID)
}
