package providers

import (
	"testing"

	"github.com/poiesic/vellum/providers/simplified"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	ex, err := Lookup(simplified.Name)
	require.NoError(t, err)
	assert.Equal(t, simplified.Name, ex.Name())
}

func TestLookup_Unsupported(t *testing.T) {
	_, err := Lookup("myspace")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.Contains(t, err.Error(), simplified.Name)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{simplified.Name}, Names())
}
