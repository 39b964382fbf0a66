package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishIsNonBlocking(t *testing.T) {
	b := newBus()
	ch, cancel := b.subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer; i++ {
		require.Equal(t, 0, b.publish(Update{Kind: UpdateState}))
	}
	require.Equal(t, 1, b.publish(Update{Kind: UpdateState}))
	require.Len(t, ch, subscriberBuffer)
}

func TestBus_FillsErrorAndTimestamp(t *testing.T) {
	b := newBus()
	ch, cancel := b.subscribe()
	defer cancel()

	b.publish(Update{Kind: UpdateError, Err: errors.New("boom")})

	u := <-ch
	require.Equal(t, "boom", u.Error)
	require.False(t, u.At.IsZero())
}

func TestBus_CancelAndClose(t *testing.T) {
	b := newBus()
	ch, cancel := b.subscribe()
	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)

	other, _ := b.subscribe()
	b.close()
	b.close()
	_, open = <-other
	require.False(t, open)

	late, _ := b.subscribe()
	_, open = <-late
	require.False(t, open)
}
