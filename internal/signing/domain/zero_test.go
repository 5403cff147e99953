package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZero(t *testing.T) {
	t.Run("zeros byte slice", func(t *testing.T) {
		data := []byte{1, 2, 3, 4, 5}
		Zero(data)
		assert.Equal(t, []byte{0, 0, 0, 0, 0}, data)
	})

	t.Run("nil slice is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Zero(nil)
		})
	})

	t.Run("empty slice is a no-op", func(t *testing.T) {
		data := []byte{}
		Zero(data)
		assert.Empty(t, data)
	})
}
