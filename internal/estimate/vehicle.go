package estimate

import "strings"

const unknownVehicle = "unknown"

// Vehicle identifies the car an estimate is made for.
type Vehicle struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
}

// NewVehicle lowercases and trims the caller supplied make and model.
func NewVehicle(brand, model string) Vehicle {
	return Vehicle{Brand: normalizeName(brand), Model: normalizeName(model)}
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return unknownVehicle
	}
	return s
}
