package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/tripsim-oss/clock"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/config"
)

func TestClockStep(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 100, Total: 50, Interval: 0.5})
	assert.Equal(t, int32(100), c.InternalStep)
	assert.Equal(t, int32(150), c.END_STEP)
	assert.Equal(t, 50.0, c.T)

	c.Step()
	assert.Equal(t, int32(101), c.InternalStep)
	assert.Equal(t, 50.5, c.T)

	c.Init()
	assert.Equal(t, int32(100), c.InternalStep)
	assert.Equal(t, 50.0, c.T)
}

func TestClockHourMinuteSecond(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 3661, Total: 10, Interval: 1})
	hour, minute, second := c.GetHourMinuteSecond()
	assert.Equal(t, 1, hour)
	assert.Equal(t, 1, minute)
	assert.Equal(t, 1.0, second)
	assert.Equal(t, "01:01:01", c.String())
}
