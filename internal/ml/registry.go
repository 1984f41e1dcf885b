package ml

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/pkg/models"
)

// Model names served by the registry.
const (
	ModelCollaborative     = "collaborative"
	ModelVehicleSimilarity = "vehicle_similarity"
	ModelUserSimilarity    = "user_similarity"
)

// LoaderFunc produces a model value, typically by decoding an artifact
// from disk. It runs at most once per load cycle.
type LoaderFunc func() (interface{}, error)

// ModelRegistry lazily loads trained artifacts with single-flight
// semantics: the first request for an unloaded model starts one
// background load and returns ErrModelLoading; concurrent requests get
// the same error without triggering additional loads. A failed load
// clears the in-flight marker so the next request retries.
type ModelRegistry struct {
	mu      sync.Mutex
	models  map[string]interface{}
	loading map[string]bool
	loaders map[string]LoaderFunc
	logger  *logrus.Logger
}

func NewModelRegistry(logger *logrus.Logger) *ModelRegistry {
	return &ModelRegistry{
		models:  make(map[string]interface{}),
		loading: make(map[string]bool),
		loaders: make(map[string]LoaderFunc),
		logger:  logger,
	}
}

// Register associates a loader with a model name. Registering again
// replaces the loader and drops any previously loaded value.
func (r *ModelRegistry) Register(name string, loader LoaderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaders[name] = loader
	delete(r.models, name)
}

// Get returns the loaded model, ErrModelLoading while a load is in
// flight, or ModelNotAvailableError when no loader is registered.
func (r *ModelRegistry) Get(name string) (interface{}, error) {
	r.mu.Lock()

	if model, ok := r.models[name]; ok {
		r.mu.Unlock()
		return model, nil
	}

	if r.loading[name] {
		r.mu.Unlock()
		return nil, models.ErrModelLoading
	}

	loader, ok := r.loaders[name]
	if !ok {
		r.mu.Unlock()
		return nil, &models.ModelNotAvailableError{Name: name}
	}

	r.loading[name] = true
	r.mu.Unlock()

	go r.load(name, loader)

	return nil, models.ErrModelLoading
}

func (r *ModelRegistry) load(name string, loader LoaderFunc) {
	start := time.Now()
	model, err := loader()

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.loading, name)

	if err != nil {
		r.logger.WithError(err).WithField("model", name).Error("Model load failed")
		return
	}

	r.models[name] = model
	r.logger.WithFields(logrus.Fields{
		"model":       name,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Model loaded")
}

// Loaded reports whether the named model is resident.
func (r *ModelRegistry) Loaded(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.models[name]
	return ok
}

// AllLoaded reports whether every model with a registered loader is
// resident. Used by the health endpoint.
func (r *ModelRegistry) AllLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.loaders {
		if _, ok := r.models[name]; !ok {
			return false
		}
	}
	return len(r.loaders) > 0
}

// Invalidate drops a loaded model so the next Get reloads it. Called
// after a training run replaces the artifacts on disk.
func (r *ModelRegistry) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, name)
}

// Warm starts loads for every registered model without waiting.
func (r *ModelRegistry) Warm() {
	r.mu.Lock()
	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		r.Get(name) //nolint:errcheck
	}
}
