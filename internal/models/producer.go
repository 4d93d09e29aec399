package models

import (
	"fmt"
	"strings"
)

// ProducerType selects the feature schema and model artifact.
type ProducerType string

const (
	Solar ProducerType = "solar"
	Wind  ProducerType = "wind"
	Hydro ProducerType = "hydro"
)

// Canonical column names shared by every clean table.
const (
	DateColumn   = "date"
	TargetColumn = "production_kwh"
)

// AllProducers lists producer types in the order they are processed.
var AllProducers = []ProducerType{Solar, Wind, Hydro}

// ParseProducerType validates a producer type coming from a URL or a flag.
func ParseProducerType(s string) (ProducerType, error) {
	p := ProducerType(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Solar, Wind, Hydro:
		return p, nil
	}
	return "", &ValidationError{
		Field:   "producer_type",
		Value:   s,
		Message: fmt.Sprintf("unknown producer type %q, expected one of solar, wind, hydro", s),
	}
}

// ProductionColumn is the producer specific column name used in the CSV logs.
func (p ProducerType) ProductionColumn() string {
	switch p {
	case Solar:
		return "prod_solaire"
	case Wind:
		return "prod_eolienne"
	case Hydro:
		return "prod_hydro"
	}
	return ""
}

// ProductionDataset is the dataset name of the producer's production log.
func (p ProducerType) ProductionDataset() string {
	return p.ProductionColumn()
}

// WeatherDataset is the dataset name holding the producer's historical features.
func (p ProducerType) WeatherDataset() string {
	switch p {
	case Solar:
		return "solar_history"
	case Wind:
		return "wind_history"
	case Hydro:
		return "hubeau"
	}
	return ""
}

// ForecastDataset is the dataset name holding the producer's forecast features.
// Hydro has no forecast feed and reuses recent observations.
func (p ProducerType) ForecastDataset() string {
	switch p {
	case Solar:
		return "solar_forecast"
	case Wind:
		return "wind_forecast"
	case Hydro:
		return "hubeau"
	}
	return ""
}

// CleanTable and RawTable apply the persistence naming convention.
func CleanTable(dataset string) string { return "clean_" + dataset }
func RawTable(dataset string) string   { return "raw_" + dataset }
