package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("https://a.test", 0)
	assert.Equal(t, a, PointID("https://a.test", 0))
	assert.NotEqual(t, a, PointID("https://a.test", 1))
	assert.NotEqual(t, a, PointID("https://b.test", 0))

	_, err := uuid.Parse(a)
	require.NoError(t, err)
}
