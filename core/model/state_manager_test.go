package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

type fakeState struct {
	coef []float64
}

func TestStateManagerLifecycle(t *testing.T) {
	sm := NewStateManager[fakeState]()
	assert.False(t, sm.IsFitted())

	_, _, err := sm.Fitted("Fake", "Predict")
	var notFitted *errors.NotFittedError
	require.True(t, errors.As(err, &notFitted))
	assert.Equal(t, "Fake", notFitted.ModelName)
	assert.Equal(t, "Predict", notFitted.Method)

	sm.SetFitted(&fakeState{coef: []float64{1, 2}}, 2, 10)
	st, nFeatures, err := sm.Fitted("Fake", "Predict")
	require.NoError(t, err)
	assert.Equal(t, 2, nFeatures)
	assert.Equal(t, []float64{1, 2}, st.coef)

	// re-fit replaces the state wholesale
	sm.SetFitted(&fakeState{coef: []float64{3}}, 1, 5)
	st, nFeatures, err = sm.Fitted("Fake", "Predict")
	require.NoError(t, err)
	assert.Equal(t, 1, nFeatures)
	assert.Equal(t, []float64{3}, st.coef)
	assert.Equal(t, ModelState{Fitted: true, NFeatures: 1, NSamples: 5}, sm.GetState())

	sm.Reset()
	assert.False(t, sm.IsFitted())
	f, n := sm.GetDimensions()
	assert.Zero(t, f)
	assert.Zero(t, n)
}

func TestStateManagerConcurrentReads(t *testing.T) {
	sm := NewStateManager[fakeState]()
	sm.SetFitted(&fakeState{coef: []float64{1}}, 1, 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := sm.Fitted("Fake", "Predict")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
