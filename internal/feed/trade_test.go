package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameObject(t *testing.T) {
	events, err := decodeFrame([]byte(`{"ev":"XT","pair":"BTC-USD","p":50000.5,"t":1700000000000}`))
	require.NoError(t, err)
	require.Len(t, events, 1)

	tr, ok := events[0].trade("XT", time.Now())
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", tr.Symbol)
	assert.Equal(t, 50000.5, tr.Price)
	assert.Equal(t, int64(1700000000000), tr.Timestamp.UnixMilli())
}

func TestDecodeFrameArrayMixedEvents(t *testing.T) {
	frame := `[
		{"ev":"status","status":"auth_success","message":"authenticated"},
		{"ev":"XT","sym":"ETH-USD","p":"3000.25","t":1700000000001},
		{"ev":"XT","pair":"SOL-USD","sym":"ignored","p":150,"t":0}
	]`
	events, err := decodeFrame([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 3)

	received := time.UnixMilli(1800000000000)

	_, ok := events[0].trade("XT", received)
	assert.False(t, ok)

	tr, ok := events[1].trade("XT", received)
	require.True(t, ok)
	assert.Equal(t, "ETH-USD", tr.Symbol)
	assert.Equal(t, 3000.25, tr.Price)

	tr, ok = events[2].trade("XT", received)
	require.True(t, ok)
	assert.Equal(t, "SOL-USD", tr.Symbol)
	assert.True(t, received.Equal(tr.Timestamp))
}

func TestTradeRejectsIncompleteEvents(t *testing.T) {
	cases := map[string]string{
		"no symbol":      `{"ev":"XT","p":1,"t":1}`,
		"no price":       `{"ev":"XT","pair":"BTC-USD","t":1}`,
		"zero price":     `{"ev":"XT","pair":"BTC-USD","p":0,"t":1}`,
		"negative price": `{"ev":"XT","pair":"BTC-USD","p":-3,"t":1}`,
		"other event":    `{"ev":"XQ","pair":"BTC-USD","p":1,"t":1}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			events, err := decodeFrame([]byte(frame))
			require.NoError(t, err)
			_, ok := events[0].trade("XT", time.Now())
			assert.False(t, ok)
		})
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	for _, frame := range []string{"", "   ", "not json", `{"ev":`, `[{"ev":"XT"`, `{"ev":"XT","p":"abc"}`} {
		_, err := decodeFrame([]byte(frame))
		assert.Error(t, err, frame)
	}
}
