package models

// Vehicle is one catalog entry, enriched with the static spec sheet
// joined on (Make, Model, Year). Rows are loaded once per process and
// never mutated afterwards.
type Vehicle struct {
	ID           int     `json:"id"`
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Price        float64 `json:"price"`
	Mileage      int     `json:"mileage"`
	Color        string  `json:"color"`
	FuelType     string  `json:"fuel_type"`
	Transmission string  `json:"transmission"`
	Status       string  `json:"status"`

	// Enriched from data/car-features.json; zero when the spec sheet
	// has no entry for the (make, model, year) key.
	Horsepower   float64 `json:"horsepower,omitempty"`
	TorqueFtLbs  float64 `json:"torque_ft_lbs,omitempty"`
	EngineSize   float64 `json:"engine_size,omitempty"`
	CityMPG      float64 `json:"city_mpg,omitempty"`
	CO2Emissions float64 `json:"co2_emissions,omitempty"`
	ZeroTo60MPH  float64 `json:"zero_to_60_mph,omitempty"`
	Drivetrain   string  `json:"drivetrain,omitempty"`
}

// Features flattens the row into the string map shape the
// recommendation responses carry.
func (v *Vehicle) Features() map[string]string {
	return map[string]string{
		"Make":           v.Make,
		"Model":          v.Model,
		"Year":           itoa(v.Year),
		"Price":          ftoa(v.Price),
		"Mileage":        itoa(v.Mileage),
		"Color":          v.Color,
		"FuelType":       v.FuelType,
		"Transmission":   v.Transmission,
		"Status":         v.Status,
		"Horsepower":     ftoa(v.Horsepower),
		"TorqueFtLbs":    ftoa(v.TorqueFtLbs),
		"EngineSize":     ftoa(v.EngineSize),
		"CityMPG":        ftoa(v.CityMPG),
		"CO2Emissions":   ftoa(v.CO2Emissions),
		"ZeroTo60MPH":    ftoa(v.ZeroTo60MPH),
		"DrivetrainType": v.Drivetrain,
	}
}

// InteractionWeights maps raw event types onto the affinity scale the
// recommenders train and score on. Unknown types count as a view.
var InteractionWeights = map[string]float64{
	"favorite-added":   5.0,
	"contacted-seller": 4.0,
	"share":            3.0,
	"view":             1.0,
}

// WeightForInteraction returns the affinity weight for an event type.
func WeightForInteraction(interactionType string) float64 {
	if w, ok := InteractionWeights[interactionType]; ok {
		return w
	}
	return 1.0
}

// Interaction is a per-(user, vehicle) aggregate of weighted events.
type Interaction struct {
	VehicleID int     `json:"vehicle_id"`
	Weight    float64 `json:"weight"`
}

// InteractionSummary is one aggregated (user, vehicle, type) row from
// the UserInteractions table.
type InteractionSummary struct {
	UserID          int    `json:"user_id"`
	VehicleID       int    `json:"vehicle_id"`
	InteractionType string `json:"interaction_type"`
	Count           int    `json:"count"`
}
