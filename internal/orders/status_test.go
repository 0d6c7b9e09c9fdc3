package orders

import (
	"testing"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusShipped, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusShipped}:   true,
		{StatusPending, StatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusShipped.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, Status("pending").Terminal())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Shipped")
	assert.NoError(t, err)
	assert.Equal(t, StatusShipped, st)

	_, err = ParseStatus("shipped")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}
