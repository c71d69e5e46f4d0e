package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitygrid/entitygrid/internal/engine"
	"github.com/entitygrid/entitygrid/internal/store"
)

func TestRegisterEntities(t *testing.T) {
	eng := engine.New(store.NewMemory(), nil)

	require.NoError(t, registerEntities(eng))
	require.NoError(t, eng.Validate())
	assert.Equal(t, 2, eng.Registry.Count())

	// Registering the same schema twice must surface the duplicate.
	assert.Error(t, registerEntities(eng))
}
