package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Location is a point on the map
type Location struct {
	Lat float64
	Lng float64
}

// City anchors generated stations
type City struct {
	Name     string
	Postcode string
	Location Location
}

// Services mirrors the API service profile
type Services struct {
	HighPressure     string   `json:"highPressure"`
	TirePressure     bool     `json:"tirePressure"`
	Vacuum           bool     `json:"vacuum"`
	HandicapAccess   bool     `json:"handicapAccess"`
	WasteWater       bool     `json:"wasteWater"`
	Electricity      string   `json:"electricity"`
	PaymentMethods   []string `json:"paymentMethods"`
	MaxVehicleLength *float64 `json:"maxVehicleLength,omitempty"`
}

// StationInput is the body of POST /api/stations
type StationInput struct {
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Images   []string `json:"images"`
	Services Services `json:"services"`
}

var cities = []City{
	{Name: "Paris", Postcode: "75012", Location: Location{Lat: 48.8566, Lng: 2.3522}},
	{Name: "Lyon", Postcode: "69007", Location: Location{Lat: 45.7640, Lng: 4.8357}},
	{Name: "Marseille", Postcode: "13008", Location: Location{Lat: 43.2965, Lng: 5.3698}},
	{Name: "Bordeaux", Postcode: "33300", Location: Location{Lat: 44.8378, Lng: -0.5792}},
	{Name: "Nantes", Postcode: "44300", Location: Location{Lat: 47.2184, Lng: -1.5536}},
	{Name: "Toulouse", Postcode: "31200", Location: Location{Lat: 43.6047, Lng: 1.4442}},
	{Name: "Montpellier", Postcode: "34070", Location: Location{Lat: 43.6108, Lng: 3.8767}},
	{Name: "Annecy", Postcode: "74000", Location: Location{Lat: 45.8992, Lng: 6.1294}},
	{Name: "La Rochelle", Postcode: "17000", Location: Location{Lat: 46.1603, Lng: -1.1511}},
	{Name: "Biarritz", Postcode: "64200", Location: Location{Lat: 43.4832, Lng: -1.5586}},
	{Name: "Quimper", Postcode: "29000", Location: Location{Lat: 47.9960, Lng: -4.1024}},
	{Name: "Strasbourg", Postcode: "67100", Location: Location{Lat: 48.5734, Lng: 7.7521}},
}

var (
	streets       = []string{"Rue de la Gare", "Avenue des Camping-Cars", "Route Nationale", "Chemin du Lac", "Boulevard du Port", "Zone Artisanale"}
	prefixes      = []string{"Aire de lavage", "Station de lavage", "Lavage Auto", "Espace Camping-Car"}
	highPressures = []string{"NONE", "GANTRY", "SCAFFOLD", "PORTAL"}
	electricities = []string{"NONE", "AMP_8", "AMP_15"}
	payments      = []string{"TOKEN", "CASH", "CARD"}
)

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lngMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLng := (rand.Float64()*2 - 1) * (meters / lngMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lng: base.Lng + dLng}
}

func randomServices() Services {
	s := Services{
		HighPressure:   highPressures[rand.Intn(len(highPressures))],
		TirePressure:   rand.Intn(2) == 0,
		Vacuum:         rand.Intn(2) == 0,
		HandicapAccess: rand.Intn(3) == 0,
		WasteWater:     rand.Intn(2) == 0,
		Electricity:    electricities[rand.Intn(len(electricities))],
	}
	for _, p := range payments {
		if rand.Intn(2) == 0 {
			s.PaymentMethods = append(s.PaymentMethods, p)
		}
	}
	if len(s.PaymentMethods) == 0 {
		s.PaymentMethods = []string{"CARD"}
	}
	if rand.Intn(2) == 0 {
		length := float64(8 + rand.Intn(5))
		s.MaxVehicleLength = &length
	}
	return s
}

func randomStation(i int) StationInput {
	city := cities[rand.Intn(len(cities))]
	loc := jitterLocation(city.Location, 5000)
	return StationInput{
		Name:     fmt.Sprintf("%s %s #%d", prefixes[rand.Intn(len(prefixes))], city.Name, i+1),
		Address:  fmt.Sprintf("%d %s, %s %s", 1+rand.Intn(150), streets[rand.Intn(len(streets))], city.Postcode, city.Name),
		Lat:      loc.Lat,
		Lng:      loc.Lng,
		Images:   []string{},
		Services: randomServices(),
	}
}

// Seeder creates demo stations through the public API
type Seeder struct {
	APIURL     string
	AuthToken  string
	AdminToken string
	Client     *http.Client
}

func (s *Seeder) do(method, url string, body interface{}, token string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.Client.Do(req)
}

// CreateStation submits one station and returns its id
func (s *Seeder) CreateStation(input StationInput) (string, error) {
	resp, err := s.do(http.MethodPost, s.APIURL+"/stations", input, s.AuthToken)
	if err != nil {
		return "", fmt.Errorf("failed to create station: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("station creation failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("invalid station ID in response")
	}

	if warning := resp.Header.Get("Warning"); warning != "" {
		log.WithField("warning", warning).Warn("Station created with warning")
	}
	return result.ID, nil
}

// Approve activates a station. Requires an admin token.
func (s *Seeder) Approve(id string) error {
	resp, err := s.do(http.MethodPatch, s.APIURL+"/stations/"+url.PathEscape(id)+"/status", map[string]string{"status": "active"}, s.AdminToken)
	if err != nil {
		return fmt.Errorf("failed to approve station: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("station approval failed with status %d", resp.StatusCode)
	}
	return nil
}

// Run creates count stations and approves them when an admin token is set.
// It returns the number of stations created.
func (s *Seeder) Run(count int) int {
	created := 0
	for i := 0; i < count; i++ {
		input := randomStation(i)
		id, err := s.CreateStation(input)
		if err != nil {
			log.WithError(err).Error("Failed to create station")
			continue
		}
		created++

		fields := log.Fields{"station_id": id, "name": input.Name}
		if s.AdminToken != "" {
			if err := s.Approve(id); err != nil {
				log.WithError(err).WithFields(fields).Error("Failed to approve station")
			} else {
				fields["status"] = "active"
			}
		}
		log.WithFields(fields).Info("Created station")
	}
	return created
}

func main() {
	seeder := &Seeder{
		APIURL:     strings.TrimRight(os.Getenv("API_BASE_URL"), "/"),
		AuthToken:  os.Getenv("SEED_AUTH_TOKEN"),
		AdminToken: os.Getenv("SEED_ADMIN_TOKEN"),
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
	if seeder.APIURL == "" {
		seeder.APIURL = "http://localhost:8080/api"
	}

	count := 20
	if val := os.Getenv("SEED_COUNT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			count = n
		}
	}

	if seeder.AuthToken == "" {
		log.Fatal("SEED_AUTH_TOKEN is required: sign in and copy the camperwash_session cookie")
	}

	log.WithFields(log.Fields{
		"count":   count,
		"api_url": seeder.APIURL,
		"approve": seeder.AdminToken != "",
	}).Info("Seeding stations")

	created := seeder.Run(count)
	log.WithField("created_stations", created).Info("Seeding completed")
	if created == 0 {
		log.Error("No stations created. Ensure SEED_AUTH_TOKEN is valid and API is reachable.")
		os.Exit(1)
	}
}
