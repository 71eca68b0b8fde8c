package bus

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBuses(t *testing.T) (*RedisBus, *RedisBus) {
	t.Helper()
	s := miniredis.RunT(t)

	a, err := NewRedisBus("redis://" + s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b, err := NewRedisBus("redis://" + s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return a, b
}

func TestRedisBusDeliversAcrossInstances(t *testing.T) {
	a, b := setupRedisBuses(t)

	var rec recorder
	_, err := b.Subscribe("doc-1", rec.handler)
	require.NoError(t, err)

	require.NoError(t, a.Publish("doc-1", NewDeletedMessage("1")))

	got := rec.waitFor(t, 1)
	assert.JSONEq(t, `{"type":"deleted","id":"1"}`, got[0])
}

func TestRedisBusFiltersOwnMessages(t *testing.T) {
	a, b := setupRedisBuses(t)

	var own, other recorder
	_, err := a.Subscribe("doc-1", own.handler)
	require.NoError(t, err)
	_, err = b.Subscribe("doc-1", other.handler)
	require.NoError(t, err)

	require.NoError(t, a.Publish("doc-1", NewDeletedMessage("1")))

	other.waitFor(t, 1)
	assert.Empty(t, own.snapshot(), "redis echo must be filtered out by sender id")
}

func TestRedisBusUnsubscribeStopsDelivery(t *testing.T) {
	a, b := setupRedisBuses(t)

	var rec recorder
	unsub, err := b.Subscribe("doc-1", rec.handler)
	require.NoError(t, err)

	unsub()
	unsub()

	require.NoError(t, a.Publish("doc-1", NewDeletedMessage("1")))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
