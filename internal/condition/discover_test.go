package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscoverEmptyDirectoryRegistersNothing(t *testing.T) {
	r := NewStaticRegistrar()
	errs := Discover(t.TempDir(), r)

	assert.Empty(t, errs)
	assert.Empty(t, r.All())
}
