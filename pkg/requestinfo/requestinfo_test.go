package requestinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithInfoRoundTrip(t *testing.T) {
	ctx := WithInfo(context.Background(), Info{IPAddress: "10.0.0.1", RequestID: "req-1"})

	info, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1", info.IPAddress)
	assert.Equal(t, "req-1", info.RequestID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
