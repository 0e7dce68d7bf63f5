package clockrt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plumcore/plumcore/adapters/clockrt"
	"github.com/plumcore/plumcore/ports"
)

func TestGetTracksWallClock(t *testing.T) {
	var c ports.Clock = clockrt.Clock{}

	before := time.Now().Unix()
	sec, nsec := c.Get()
	after := time.Now().Unix()

	assert.GreaterOrEqual(t, sec, before)
	assert.LessOrEqual(t, sec, after+1)
	assert.GreaterOrEqual(t, nsec, int64(0))
	assert.Less(t, nsec, int64(time.Second))
}
