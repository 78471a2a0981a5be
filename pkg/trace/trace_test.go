package trace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordJSON(t *testing.T) {
	rec := &Record{
		Time:    1.5,
		Kind:    EventDelivered,
		EventID: 7,
		Type:    "PingEvent",
		Src:     "client",
		Dst:     "server",
		Payload: json.RawMessage(`{"seq":1}`),
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec.Kind, decoded.Kind)
	assert.Equal(t, rec.EventID, decoded.EventID)
	assert.JSONEq(t, `{"seq":1}`, string(decoded.Payload))
}

func TestBrokerDelivery(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe(0)

	broker.Publish(&Record{Time: 1.0, Kind: TimerFired, Src: "node-1"})
	broker.Publish(&Record{Time: 2.0, Kind: TimerFired, Src: "node-2"})

	// Publication is synchronous: both records are already buffered.
	records := sub.Drain()
	require.Len(t, records, 2)
	assert.Equal(t, "node-1", records[0].Src)
	assert.Equal(t, "node-2", records[1].Src)

	// Drain empties the ring.
	assert.Empty(t, sub.Drain())
	assert.Zero(t, sub.Lost())
}

func TestBrokerWakeupSignal(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe(4)

	select {
	case <-sub.Wait():
		t.Fatal("wakeup before any publish")
	default:
	}

	broker.Publish(&Record{Kind: EventDelivered})
	broker.Publish(&Record{Kind: EventDelivered})

	// Signals coalesce: one wakeup covers both records.
	<-sub.Wait()
	assert.Len(t, sub.Drain(), 2)
	select {
	case <-sub.Wait():
		t.Fatal("stale wakeup after drain")
	default:
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe(4)
	broker.Unsubscribe(sub)

	// The wakeup channel is closed on unsubscribe.
	_, open := <-sub.Wait()
	assert.False(t, open)

	// Records published afterwards are not buffered.
	broker.Publish(&Record{Kind: EventDelivered})
	assert.Empty(t, sub.Drain())
}

func TestBrokerLaggingSubscriberLosesOldest(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe(4)

	for i := 0; i < 10; i++ {
		broker.Publish(&Record{Time: float64(i), Kind: EventDelivered})
	}

	// The ring keeps the freshest records and counts the overwritten ones.
	records := sub.Drain()
	require.Len(t, records, 4)
	assert.Equal(t, 6.0, records[0].Time)
	assert.Equal(t, 9.0, records[3].Time)
	assert.Equal(t, uint64(6), sub.Lost())
}

func TestBrokerIndependentSubscribers(t *testing.T) {
	broker := NewBroker()
	fast := broker.Subscribe(16)
	slow := broker.Subscribe(2)

	for i := 0; i < 5; i++ {
		broker.Publish(&Record{Time: float64(i), Kind: EventDelivered})
	}

	assert.Len(t, fast.Drain(), 5)
	assert.Zero(t, fast.Lost())
	assert.Len(t, slow.Drain(), 2)
	assert.Equal(t, uint64(3), slow.Lost())
}
