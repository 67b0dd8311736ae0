package notification

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversOnlyToOwner(t *testing.T) {
	b := NewBroadcaster(4, zerolog.Nop())
	mine, cancelMine := b.Subscribe("u-1")
	defer cancelMine()
	theirs, cancelTheirs := b.Subscribe("u-2")
	defer cancelTheirs()

	require.NoError(t, b.Publish(context.Background(), models.Notification{ID: "n-1", UserID: "u-1"}))

	got := <-mine
	assert.Equal(t, "n-1", got.ID)
	select {
	case n := <-theirs:
		t.Fatalf("unexpected notification %s for other user", n.ID)
	default:
	}
}

func TestBroadcaster_DropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(1, zerolog.Nop())
	ch, cancel := b.Subscribe("u-1")

	require.NoError(t, b.Publish(context.Background(), models.Notification{ID: "n-1", UserID: "u-1"}))
	require.NoError(t, b.Publish(context.Background(), models.Notification{ID: "n-2", UserID: "u-1"}))

	assert.Equal(t, "n-1", (<-ch).ID)
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestDecodeStreamMessage(t *testing.T) {
	raw, err := json.Marshal(models.Notification{ID: "n-1", UserID: "u-1", Priority: models.PriorityHigh})
	require.NoError(t, err)

	notif, err := decodeStreamMessage(string(raw))
	require.NoError(t, err)
	assert.Equal(t, "u-1", notif.UserID)

	_, err = decodeStreamMessage(`{"id":"n-2"}`)
	assert.Error(t, err)
	_, err = decodeStreamMessage(`not json`)
	assert.Error(t, err)
}

func TestRedisStreamChannelNaming(t *testing.T) {
	s := NewRedisStream(nil, "alerts:", zerolog.Nop())
	assert.Equal(t, "alerts:u-1", s.channel("u-1"))
	assert.Equal(t, "beacon:notifications:u-1", NewRedisStream(nil, "", zerolog.Nop()).channel("u-1"))
}
