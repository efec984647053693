package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticDisplays(t *testing.T) {
	src := map[uint64]uint64{2: 7}
	d := NewStaticDisplays(src)
	src[3] = 9

	assert.Equal(t, uint64(0), d.DisplayGroupOf(0))
	assert.Equal(t, uint64(7), d.DisplayGroupOf(2))
	assert.Equal(t, uint64(0), d.DisplayGroupOf(3), "the table is copied")

	d.Assign(3, 9)
	assert.Equal(t, uint64(9), d.DisplayGroupOf(3))

	empty := NewStaticDisplays(nil)
	assert.Equal(t, uint64(0), empty.DisplayGroupOf(5))
}
