// Package model provides state management for machine learning models.
package model

import (
	"sync"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// StateManager holds the two-state lifecycle of a classifier: Unfitted (no
// state) or Fitted with the engine state S. The fitted state only exists
// together with the feature count it was trained on, so prediction code
// cannot read one without the other.
type StateManager[S any] struct {
	mu        sync.RWMutex
	fitted    *S
	nFeatures int
	nSamples  int
}

// NewStateManager creates an Unfitted StateManager.
func NewStateManager[S any]() *StateManager[S] {
	return &StateManager[S]{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager[S]) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted != nil
}

// SetFitted moves the model to Fitted, replacing any previous state wholesale.
func (s *StateManager[S]) SetFitted(state *S, nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = state
	s.nFeatures = nFeatures
	s.nSamples = nSamples
}

// Reset discards the fitted state.
func (s *StateManager[S]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = nil
	s.nFeatures = 0
	s.nSamples = 0
}

// Fitted returns the state and training feature count, or a NotFittedError
// naming modelName and method.
func (s *StateManager[S]) Fitted(modelName, method string) (*S, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fitted == nil {
		return nil, 0, errors.NewNotFittedError(modelName, method)
	}
	return s.fitted, s.nFeatures, nil
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager[S]) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// ModelState is a serializable summary of the lifecycle.
type ModelState struct {
	Fitted    bool                   `json:"fitted"`
	NFeatures int                    `json:"n_features,omitempty"`
	NSamples  int                    `json:"n_samples,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// GetState returns the current lifecycle summary.
func (s *StateManager[S]) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{
		Fitted:    s.fitted != nil,
		NFeatures: s.nFeatures,
		NSamples:  s.nSamples,
	}
}
