package models

import (
	"strings"
	"time"
)

// StationStatus is the moderation state of a station.
type StationStatus string

const (
	StatusPending  StationStatus = "pending"
	StatusActive   StationStatus = "active"
	StatusInactive StationStatus = "inactive"
)

// ParseStationStatus accepts the API values and the legacy "en_attente" spelling.
func ParseStationStatus(s string) (StationStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "en_attente":
		return StatusPending, true
	case "active":
		return StatusActive, true
	case "inactive":
		return StatusInactive, true
	default:
		return "", false
	}
}

// HighPressureType is the kind of high-pressure washing structure.
type HighPressureType string

const (
	HighPressureNone     HighPressureType = "NONE"
	HighPressureGantry   HighPressureType = "GANTRY"
	HighPressureScaffold HighPressureType = "SCAFFOLD"
	HighPressurePortal   HighPressureType = "PORTAL"
)

var highPressureAliases = map[string]HighPressureType{
	"":            HighPressureNone,
	"NONE":        HighPressureNone,
	"GANTRY":      HighPressureGantry,
	"PASSERELLE":  HighPressureGantry,
	"SCAFFOLD":    HighPressureScaffold,
	"ECHAFAUDAGE": HighPressureScaffold,
	"PORTAL":      HighPressurePortal,
	"PORTIQUE":    HighPressurePortal,
}

// Normalize maps legacy and lower-case spellings to the canonical value.
// Unknown values are returned upper-cased so validation can reject them.
func (h HighPressureType) Normalize() HighPressureType {
	key := strings.ToUpper(strings.TrimSpace(string(h)))
	if canonical, ok := highPressureAliases[key]; ok {
		return canonical
	}
	return HighPressureType(key)
}

// ElectricityType is the electrical hookup offered.
type ElectricityType string

const (
	ElectricityNone  ElectricityType = "NONE"
	ElectricityAmp8  ElectricityType = "AMP_8"
	ElectricityAmp15 ElectricityType = "AMP_15"
)

// Normalize maps an empty value to NONE and upper-cases the rest.
func (e ElectricityType) Normalize() ElectricityType {
	key := strings.ToUpper(strings.TrimSpace(string(e)))
	if key == "" {
		return ElectricityNone
	}
	return ElectricityType(key)
}

// PaymentMethod is an accepted means of payment.
type PaymentMethod string

const (
	PaymentToken PaymentMethod = "TOKEN"
	PaymentCash  PaymentMethod = "CASH"
	PaymentCard  PaymentMethod = "CARD"
)

var paymentAliases = map[string]PaymentMethod{
	"TOKEN":          PaymentToken,
	"JETON":          PaymentToken,
	"CASH":           PaymentCash,
	"ESPECES":        PaymentCash,
	"CARD":           PaymentCard,
	"CARTE_BANCAIRE": PaymentCard,
}

// Normalize maps legacy spellings to the canonical value.
func (p PaymentMethod) Normalize() PaymentMethod {
	key := strings.ToUpper(strings.TrimSpace(string(p)))
	if canonical, ok := paymentAliases[key]; ok {
		return canonical
	}
	return PaymentMethod(key)
}

// ServiceProfile describes the facilities of one station.
type ServiceProfile struct {
	HighPressure     HighPressureType `json:"highPressure" bson:"high_pressure" validate:"oneof=NONE GANTRY SCAFFOLD PORTAL"`
	TirePressure     bool             `json:"tirePressure" bson:"tire_pressure"`
	Vacuum           bool             `json:"vacuum" bson:"vacuum"`
	HandicapAccess   bool             `json:"handicapAccess" bson:"handicap_access"`
	WasteWater       bool             `json:"wasteWater" bson:"waste_water"`
	Electricity      ElectricityType  `json:"electricity" bson:"electricity" validate:"oneof=NONE AMP_8 AMP_15"`
	PaymentMethods   []PaymentMethod  `json:"paymentMethods" bson:"payment_methods" validate:"dive,oneof=TOKEN CASH CARD"`
	MaxVehicleLength *float64         `json:"maxVehicleLength" bson:"max_vehicle_length,omitempty" validate:"omitempty,gt=0,max=30"`
}

// Normalize canonicalizes enum spellings, de-duplicates payment methods and
// treats a zero vehicle length as unknown.
func (s ServiceProfile) Normalize() ServiceProfile {
	s.HighPressure = s.HighPressure.Normalize()
	s.Electricity = s.Electricity.Normalize()

	methods := make([]PaymentMethod, 0, len(s.PaymentMethods))
	seen := make(map[PaymentMethod]bool, len(s.PaymentMethods))
	for _, m := range s.PaymentMethods {
		m = m.Normalize()
		if seen[m] {
			continue
		}
		seen[m] = true
		methods = append(methods, m)
	}
	s.PaymentMethods = methods

	if s.MaxVehicleLength != nil && *s.MaxVehicleLength == 0 {
		s.MaxVehicleLength = nil
	}
	return s
}

// Has reports whether the named boolean service is available.
// Names are the JSON field names (tirePressure, vacuum, handicapAccess, wasteWater, highPressure).
func (s ServiceProfile) Has(service string) bool {
	switch service {
	case "tirePressure":
		return s.TirePressure
	case "vacuum":
		return s.Vacuum
	case "handicapAccess":
		return s.HandicapAccess
	case "wasteWater":
		return s.WasteWater
	case "highPressure":
		return s.HighPressure != "" && s.HighPressure != HighPressureNone
	default:
		return false
	}
}

// ServiceFilterNames lists the services a listing can be filtered on.
var ServiceFilterNames = []string{"highPressure", "tirePressure", "vacuum", "handicapAccess", "wasteWater"}

// Author is the identity snapshot of the submitter, frozen at submission time.
type Author struct {
	Name  *string `json:"name" bson:"name,omitempty"`
	Email string  `json:"email" bson:"email"`
}

// Station is a wash facility listing.
type Station struct {
	ID        string         `json:"id" bson:"_id"`
	Name      string         `json:"name" bson:"name"`
	Address   string         `json:"address" bson:"address"`
	Lat       float64        `json:"lat" bson:"lat"`
	Lng       float64        `json:"lng" bson:"lng"`
	Images    []string       `json:"images" bson:"images"`
	Services  ServiceProfile `json:"services" bson:"services"`
	Status    StationStatus  `json:"status" bson:"status"`
	Author    Author         `json:"author" bson:"author"`
	CreatedAt time.Time      `json:"createdAt" bson:"created_at"`
}

// StationFilter narrows a station listing.
type StationFilter struct {
	Status   StationStatus
	Search   string
	Services []string
}

// Matches applies the filter to a station in memory.
func (f StationFilter) Matches(s Station) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(s.Name), q) && !strings.Contains(strings.ToLower(s.Address), q) {
			return false
		}
	}
	for _, service := range f.Services {
		if !s.Services.Has(service) {
			return false
		}
	}
	return true
}

// StatusCounts is the number of stations per moderation state.
type StatusCounts struct {
	Total    int64
	Pending  int64
	Active   int64
	Inactive int64
}

// Add records n stations in the given state.
func (c *StatusCounts) Add(status StationStatus, n int64) {
	switch status {
	case StatusPending:
		c.Pending += n
	case StatusActive:
		c.Active += n
	case StatusInactive:
		c.Inactive += n
	default:
		return
	}
	c.Total += n
}

// StationStats is the admin dashboard summary.
type StationStats struct {
	TotalStations    int64 `json:"totalStations"`
	ActiveStations   int64 `json:"activeStations"`
	PendingStations  int64 `json:"pendingStations"`
	InactiveStations int64 `json:"inactiveStations"`
	WeeklyVisits     int64 `json:"weeklyVisits"`
	MonthlyVisits    int64 `json:"monthlyVisits"`
}
