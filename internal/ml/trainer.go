package ml

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/pkg/models"
)

// VehicleSource supplies the catalog for a training run.
type VehicleSource interface {
	Vehicles(ctx context.Context) ([]models.Vehicle, error)
}

// InteractionSource supplies aggregated interaction rows.
type InteractionSource interface {
	InteractionsSummary(ctx context.Context) ([]models.InteractionSummary, error)
}

// featureWeights tunes how much each vehicle attribute contributes to
// a similarity space. Two profiles exist: the vehicle-to-vehicle map
// leans on mechanical spec, the user taste profile leans on price and
// usage.
type featureWeights struct {
	Price   float64
	Mileage float64
	Year    float64
	Spec    float64
	Make    float64
	Fuel    float64
	Trans   float64
	Color   float64
}

var (
	vehicleProfile = featureWeights{
		Price: 0.8, Mileage: 0.6, Year: 0.8,
		Spec: 1.0, Make: 1.0, Fuel: 1.0, Trans: 0.8, Color: 0.2,
	}
	userProfile = featureWeights{
		Price: 1.5, Mileage: 1.0, Year: 1.0,
		Spec: 0.5, Make: 0.8, Fuel: 0.8, Trans: 0.5, Color: 0.2,
	}
)

// Trainer rebuilds the three serving artifacts from the live catalog
// and interaction history. It runs offline or in the background at
// startup when artifacts are missing.
type Trainer struct {
	vehicles     VehicleSource
	interactions InteractionSource
	registry     *ModelRegistry
	cfg          config.ModelConfig
	logger       *logrus.Logger
}

func NewTrainer(vehicles VehicleSource, interactions InteractionSource, registry *ModelRegistry, cfg config.ModelConfig, logger *logrus.Logger) *Trainer {
	return &Trainer{
		vehicles:     vehicles,
		interactions: interactions,
		registry:     registry,
		cfg:          cfg,
		logger:       logger,
	}
}

// Train computes and saves all three artifacts, then invalidates the
// registry so the next request picks up the fresh models.
func (t *Trainer) Train(ctx context.Context) error {
	start := time.Now()
	t.logger.Info("Starting training run")

	vehicles, err := t.vehicles.Vehicles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vehicles: %w", err)
	}
	if len(vehicles) == 0 {
		return fmt.Errorf("empty vehicle catalog, nothing to train on")
	}

	interactions, err := t.interactions.InteractionsSummary(ctx)
	if err != nil {
		return fmt.Errorf("failed to load interactions: %w", err)
	}

	space := buildFeatureSpace(vehicles)

	// Two vehicle-to-vehicle maps over differently weighted spaces: the
	// spec-heavy one serves similar-vehicle lookups, the buyer-facing
	// one feeds the hybrid content signal.
	vehicleSim := t.trainSimilarity(vehicles, space, "vehicle", vehicleProfile)
	if err := SaveSimilarityMap(t.cfg.Path, VehicleSimilarityFile, vehicleSim); err != nil {
		return err
	}

	userSim := t.trainSimilarity(vehicles, space, "user", userProfile)
	if err := SaveSimilarityMap(t.cfg.Path, UserSimilarityFile, userSim); err != nil {
		return err
	}

	collab, err := t.trainCollaborative(vehicles, interactions)
	if err != nil {
		return err
	}
	if err := SaveCollabModel(t.cfg.Path, collab); err != nil {
		return err
	}

	for _, name := range []string{ModelCollaborative, ModelVehicleSimilarity, ModelUserSimilarity} {
		t.registry.Invalidate(name)
	}
	t.registry.Warm()

	t.logger.WithFields(logrus.Fields{
		"vehicles":     len(vehicles),
		"interactions": len(interactions),
		"users":        len(collab.UserIndex),
		"duration":     time.Since(start).String(),
	}).Info("Training run complete")

	return nil
}

// TrainInBackground runs Train on its own goroutine. Startup uses it
// when no artifacts exist yet so the server comes up immediately and
// serves ErrModelLoading until the run finishes.
func (t *Trainer) TrainInBackground() {
	go func() {
		if err := t.Train(context.Background()); err != nil {
			t.logger.WithError(err).Error("Background training run failed")
		}
	}()
}

// featureSpace fixes the encoding of a vehicle into a dense vector for
// one training run: min-max scaled numerics followed by one-hot
// categorical slots indexed over the catalog.
type featureSpace struct {
	numMins  []float64
	numMaxs  []float64
	catIndex map[string]int
	dims     int
}

func numericFeatures(v *models.Vehicle) []float64 {
	return []float64{
		v.Price,
		float64(v.Mileage),
		float64(v.Year),
		v.Horsepower,
		v.TorqueFtLbs,
		v.EngineSize,
		v.CityMPG,
		v.CO2Emissions,
		v.ZeroTo60MPH,
	}
}

func categoricalKeys(v *models.Vehicle) []string {
	return []string{
		"make:" + strings.ToLower(v.Make),
		"fuel:" + strings.ToLower(v.FuelType),
		"trans:" + strings.ToLower(v.Transmission),
		"color:" + strings.ToLower(v.Color),
	}
}

func buildFeatureSpace(vehicles []models.Vehicle) *featureSpace {
	numCount := len(numericFeatures(&vehicles[0]))
	space := &featureSpace{
		numMins:  make([]float64, numCount),
		numMaxs:  make([]float64, numCount),
		catIndex: make(map[string]int),
	}
	copy(space.numMins, numericFeatures(&vehicles[0]))
	copy(space.numMaxs, numericFeatures(&vehicles[0]))

	for i := range vehicles {
		nums := numericFeatures(&vehicles[i])
		for j, n := range nums {
			if n < space.numMins[j] {
				space.numMins[j] = n
			}
			if n > space.numMaxs[j] {
				space.numMaxs[j] = n
			}
		}
		for _, key := range categoricalKeys(&vehicles[i]) {
			if _, ok := space.catIndex[key]; !ok {
				space.catIndex[key] = len(space.catIndex)
			}
		}
	}

	space.dims = numCount + len(space.catIndex)
	return space
}

// vector encodes one vehicle into the space under the given weight
// profile and unit-normalizes it so dot products are cosines.
func (s *featureSpace) vector(v *models.Vehicle, w featureWeights) []float64 {
	vec := make([]float64, s.dims)

	numWeights := []float64{w.Price, w.Mileage, w.Year, w.Spec, w.Spec, w.Spec, w.Spec, w.Spec, w.Spec}
	for j, n := range numericFeatures(v) {
		span := s.numMaxs[j] - s.numMins[j]
		if span > 0 {
			vec[j] = numWeights[j] * (n - s.numMins[j]) / span
		}
	}

	catWeights := []float64{w.Make, w.Fuel, w.Trans, w.Color}
	numCount := len(numWeights)
	for k, key := range categoricalKeys(v) {
		if idx, ok := s.catIndex[key]; ok {
			vec[numCount+idx] = catWeights[k]
		}
	}

	norm := floats.Norm(vec, 2)
	if norm > 0 {
		floats.Scale(1.0/norm, vec)
	}
	return vec
}

// topK keeps the K best-scoring neighbors for one row, best first.
func topK(scores []models.ScoredVehicle, k int) []Neighbor {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].SimilarityScore != scores[j].SimilarityScore {
			return scores[i].SimilarityScore > scores[j].SimilarityScore
		}
		return scores[i].VehicleID < scores[j].VehicleID
	})

	if k > len(scores) {
		k = len(scores)
	}
	neighbors := make([]Neighbor, k)
	for i := 0; i < k; i++ {
		neighbors[i] = Neighbor{ID: scores[i].VehicleID, Score: scores[i].SimilarityScore}
	}
	return neighbors
}

func (t *Trainer) trainSimilarity(vehicles []models.Vehicle, space *featureSpace, kind string, weights featureWeights) *SimilarityMap {
	vecs := make([][]float64, len(vehicles))
	for i := range vehicles {
		vecs[i] = space.vector(&vehicles[i], weights)
	}

	sim := &SimilarityMap{
		Kind:      kind,
		K:         t.cfg.TopKSimilar,
		TrainedAt: time.Now().UTC(),
		Neighbors: make(map[int][]Neighbor, len(vehicles)),
	}

	scores := make([]models.ScoredVehicle, 0, len(vehicles))
	for i := range vehicles {
		scores = scores[:0]
		for j := range vehicles {
			if i == j {
				continue
			}
			scores = append(scores, models.ScoredVehicle{
				VehicleID:       vehicles[j].ID,
				SimilarityScore: floats.Dot(vecs[i], vecs[j]),
			})
		}
		sim.Neighbors[vehicles[i].ID] = topK(scores, t.cfg.TopKSimilar)
	}

	return sim
}

func (t *Trainer) trainCollaborative(vehicles []models.Vehicle, interactions []models.InteractionSummary) (*CollabModel, error) {
	vehicleIDs := make([]int, len(vehicles))
	colIndex := make(map[int]int, len(vehicles))
	for i := range vehicles {
		vehicleIDs[i] = vehicles[i].ID
		colIndex[vehicles[i].ID] = i
	}

	userIndex := make(map[int]int)
	for _, row := range interactions {
		if _, ok := colIndex[row.VehicleID]; !ok {
			continue
		}
		if _, ok := userIndex[row.UserID]; !ok {
			userIndex[row.UserID] = len(userIndex)
		}
	}
	if len(userIndex) == 0 {
		return nil, fmt.Errorf("no interactions over catalog vehicles, cannot factorize")
	}

	affinity := mat.NewDense(len(userIndex), len(vehicleIDs), nil)
	for _, row := range interactions {
		col, ok := colIndex[row.VehicleID]
		if !ok {
			continue
		}
		r := userIndex[row.UserID]
		w := models.WeightForInteraction(row.InteractionType) * float64(row.Count)
		affinity.Set(r, col, affinity.At(r, col)+w)
	}

	var svd mat.SVD
	if ok := svd.Factorize(affinity, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD factorization did not converge")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	k := t.cfg.SVDComponents
	if k > len(sigma) {
		k = len(sigma)
	}

	model := &CollabModel{
		Components:  k,
		TrainedAt:   time.Now().UTC(),
		UserIndex:   userIndex,
		VehicleIDs:  vehicleIDs,
		UserFactors: make([][]float64, len(userIndex)),
		ItemFactors: make([][]float64, len(vehicleIDs)),
	}

	// Fold the singular values into the user side so scoring is a
	// plain dot product.
	for r := 0; r < len(userIndex); r++ {
		factors := make([]float64, k)
		for c := 0; c < k; c++ {
			factors[c] = u.At(r, c) * sigma[c]
		}
		model.UserFactors[r] = factors
	}
	for j := 0; j < len(vehicleIDs); j++ {
		factors := make([]float64, k)
		for c := 0; c < k; c++ {
			factors[c] = v.At(j, c)
		}
		model.ItemFactors[j] = factors
	}

	return model, nil
}
