package ml

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Artifact file names under the configured model directory. The trainer
// writes them atomically; the registry loaders read them.
const (
	CollabModelFile       = "collaborative_model.gob"
	VehicleSimilarityFile = "similarity_topk_vehicle.gob"
	UserSimilarityFile    = "similarity_topk_user.gob"
)

// Neighbor is one entry in a precomputed top-K similarity list.
type Neighbor struct {
	ID    int
	Score float64
}

// SimilarityMap holds the top-K nearest neighbors per entity, computed
// offline over the vehicle feature space.
type SimilarityMap struct {
	Kind      string
	K         int
	TrainedAt time.Time
	Neighbors map[int][]Neighbor
}

// TopFor returns at most n neighbors for the given id, best first.
func (m *SimilarityMap) TopFor(id, n int) []Neighbor {
	neighbors, ok := m.Neighbors[id]
	if !ok {
		return nil
	}
	if n < len(neighbors) {
		neighbors = neighbors[:n]
	}
	return neighbors
}

// CollabModel is the truncated-SVD factorization of the weighted
// user-vehicle interaction matrix. Scoring a user is a dense
// matrix-vector product over the item factors.
type CollabModel struct {
	Components int
	TrainedAt  time.Time

	// UserIndex maps a user id to its row in UserFactors.
	UserIndex map[int]int
	// VehicleIDs maps a column index back to the vehicle id.
	VehicleIDs []int

	UserFactors [][]float64
	ItemFactors [][]float64
}

// Scores computes the reconstructed affinity of every vehicle column
// for the given user row.
func (m *CollabModel) Scores(userRow int) []float64 {
	scores := make([]float64, len(m.ItemFactors))
	u := m.UserFactors[userRow]
	for j, item := range m.ItemFactors {
		var dot float64
		for k, f := range item {
			dot += f * u[k]
		}
		scores[j] = dot
	}
	return scores
}

func saveArtifact(dir, name string, artifact interface{}) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(artifact); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

func loadArtifact(dir, name string, dest interface{}) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// SaveSimilarityMap writes a similarity artifact atomically.
func SaveSimilarityMap(dir, name string, m *SimilarityMap) error {
	return saveArtifact(dir, name, m)
}

// LoadSimilarityMap reads a similarity artifact from disk.
func LoadSimilarityMap(dir, name string) (*SimilarityMap, error) {
	var m SimilarityMap
	if err := loadArtifact(dir, name, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveCollabModel writes the collaborative artifact atomically.
func SaveCollabModel(dir string, m *CollabModel) error {
	return saveArtifact(dir, CollabModelFile, m)
}

// LoadCollabModel reads the collaborative artifact from disk.
func LoadCollabModel(dir string) (*CollabModel, error) {
	var m CollabModel
	if err := loadArtifact(dir, CollabModelFile, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// RegisterArtifactLoaders wires the three disk artifacts into the
// registry under their serving names.
func RegisterArtifactLoaders(r *ModelRegistry, dir string) {
	r.Register(ModelCollaborative, func() (interface{}, error) {
		return LoadCollabModel(dir)
	})
	r.Register(ModelVehicleSimilarity, func() (interface{}, error) {
		return LoadSimilarityMap(dir, VehicleSimilarityFile)
	})
	r.Register(ModelUserSimilarity, func() (interface{}, error) {
		return LoadSimilarityMap(dir, UserSimilarityFile)
	})
}

// ArtifactsExist reports whether all three trained artifacts are on
// disk, which decides whether startup kicks off a background training
// run.
func ArtifactsExist(dir string) bool {
	for _, name := range []string{CollabModelFile, VehicleSimilarityFile, UserSimilarityFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
