package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/pkg/models"
)

const vehiclesQuery = `
	SELECT "Id", "Make", "Model", "Year", "Price", "Mileage",
	       "Color", "FuelType", "Transmission", "Status"
	FROM "Vehicles"
	WHERE "Status" = 'Active'
	ORDER BY "Id"
	LIMIT $1`

// specSheet is one row of the static car-features file, keyed by
// (make, model, year).
type specSheet struct {
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Horsepower   float64 `json:"horsepower"`
	TorqueFtLbs  float64 `json:"torque_ft_lbs"`
	EngineSize   float64 `json:"engine_size"`
	CityMPG      float64 `json:"city_mpg"`
	CO2Emissions float64 `json:"co2_emissions"`
	ZeroTo60MPH  float64 `json:"zero_to_60_mph"`
	Drivetrain   string  `json:"drivetrain_type"`
}

// VehicleStore serves the enriched active-vehicle catalog. The catalog
// is loaded once per process (Redis first, Postgres on a miss) and
// held in memory; a training run or restart picks up newer rows.
type VehicleStore struct {
	db     Querier
	cache  *cache.Cache
	cfg    config.ModelConfig
	logger *logrus.Logger

	mu       sync.RWMutex
	vehicles []models.Vehicle
	byID     map[int]*models.Vehicle
}

func NewVehicleStore(db Querier, c *cache.Cache, cfg config.ModelConfig, logger *logrus.Logger) *VehicleStore {
	return &VehicleStore{
		db:     db,
		cache:  c,
		cfg:    cfg,
		logger: logger,
	}
}

// Vehicles returns the full enriched catalog, loading it on first use.
func (s *VehicleStore) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	s.mu.RLock()
	if s.vehicles != nil {
		defer s.mu.RUnlock()
		return s.vehicles, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have loaded while we waited for the lock.
	if s.vehicles != nil {
		return s.vehicles, nil
	}

	if cached, hit := s.cache.GetVehicleFeatures(ctx); hit && len(cached) > 0 {
		s.index(cached)
		s.logger.WithField("vehicles", len(cached)).Debug("Vehicle catalog loaded from cache")
		return s.vehicles, nil
	}

	vehicles, err := s.loadFromDB(ctx)
	if err != nil {
		return nil, err
	}

	s.index(vehicles)
	s.cache.SetVehicleFeatures(ctx, vehicles)

	s.logger.WithField("vehicles", len(vehicles)).Info("Vehicle catalog loaded")
	return s.vehicles, nil
}

// VehicleByID resolves a single catalog entry.
func (s *VehicleStore) VehicleByID(ctx context.Context, id int) (*models.Vehicle, error) {
	if _, err := s.Vehicles(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.byID[id]
	if !ok {
		return nil, &models.VehicleNotFoundError{VehicleID: id}
	}
	return v, nil
}

func (s *VehicleStore) index(vehicles []models.Vehicle) {
	s.vehicles = vehicles
	s.byID = make(map[int]*models.Vehicle, len(vehicles))
	for i := range vehicles {
		s.byID[vehicles[i].ID] = &vehicles[i]
	}
}

func (s *VehicleStore) loadFromDB(ctx context.Context) ([]models.Vehicle, error) {
	limit := s.cfg.VehicleLimit
	if limit <= 0 {
		limit = 20000
	}

	rows, err := s.db.Query(ctx, vehiclesQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.ID, &v.Make, &v.Model, &v.Year, &v.Price, &v.Mileage,
			&v.Color, &v.FuelType, &v.Transmission, &v.Status); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle row: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vehicle query failed: %w", err)
	}

	s.enrich(vehicles)
	return vehicles, nil
}

// enrich joins the static spec sheet onto the catalog. A missing or
// unreadable file only costs the extra features.
func (s *VehicleStore) enrich(vehicles []models.Vehicle) {
	if s.cfg.CarFeaturesPath == "" {
		return
	}

	data, err := os.ReadFile(s.cfg.CarFeaturesPath)
	if err != nil {
		s.logger.WithError(err).Warn("Car features file unavailable, serving base catalog")
		return
	}

	var sheets []specSheet
	if err := json.Unmarshal(data, &sheets); err != nil {
		s.logger.WithError(err).Warn("Car features file unreadable, serving base catalog")
		return
	}

	bySpec := make(map[string]*specSheet, len(sheets))
	for i := range sheets {
		bySpec[specKey(sheets[i].Make, sheets[i].Model, sheets[i].Year)] = &sheets[i]
	}

	matched := 0
	for i := range vehicles {
		sheet, ok := bySpec[specKey(vehicles[i].Make, vehicles[i].Model, vehicles[i].Year)]
		if !ok {
			continue
		}
		vehicles[i].Horsepower = sheet.Horsepower
		vehicles[i].TorqueFtLbs = sheet.TorqueFtLbs
		vehicles[i].EngineSize = sheet.EngineSize
		vehicles[i].CityMPG = sheet.CityMPG
		vehicles[i].CO2Emissions = sheet.CO2Emissions
		vehicles[i].ZeroTo60MPH = sheet.ZeroTo60MPH
		vehicles[i].Drivetrain = sheet.Drivetrain
		matched++
	}

	s.logger.WithFields(logrus.Fields{
		"vehicles": len(vehicles),
		"matched":  matched,
	}).Debug("Vehicle catalog enriched")
}

func specKey(make, model string, year int) string {
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(strings.TrimSpace(make)), strings.ToLower(strings.TrimSpace(model)), year)
}
