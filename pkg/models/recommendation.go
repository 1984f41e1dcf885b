package models

// Strategy selects which recommender serves a request.
type Strategy string

const (
	StrategyContentBased  Strategy = "content_based"
	StrategyCollaborative Strategy = "collaborative"
	StrategyHybrid        Strategy = "hybrid"
)

// VehicleRecommendation is one scored entry in a personalized result.
// Scores are comparable only within a single response.
type VehicleRecommendation struct {
	VehicleID int               `json:"vehicle_id"`
	Score     float64           `json:"score"`
	Features  map[string]string `json:"features"`
}

type RecommendationResponse struct {
	Recommendations []VehicleRecommendation `json:"recommendations"`
	ModelType       string                  `json:"model_type"`
}

// SimilarVehicle is one neighbor from the precomputed similarity map.
type SimilarVehicle struct {
	VehicleID       int               `json:"vehicle_id"`
	SimilarityScore float64           `json:"similarity_score"`
	Features        map[string]string `json:"features"`
}

type SimilarVehiclesResponse struct {
	VehicleID       int              `json:"vehicle_id"`
	SimilarVehicles []SimilarVehicle `json:"similar_vehicles"`
	Source          string           `json:"source"`
}

// ScoredVehicle is a raw (id, score) pair used on the hybrid path
// before enrichment.
type ScoredVehicle struct {
	VehicleID       int     `json:"vehicle_id"`
	SimilarityScore float64 `json:"similarity_score"`
}
