package catalog

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"flightdesk/app/config"
	"flightdesk/app/model"

	"github.com/cespare/xxhash/v2"
	"github.com/elliotchance/pie/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	defaultSuggestLimit = 5
	maxSuggestLimit     = 10

	defaultGeneratedCacheSize = 10000
)

var (
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	tripIDPattern = regexp.MustCompile(`^(.*)-(\d{4}-\d{2}-\d{2})$`)

	mockCarriers = []string{"ACME Air", "SkyLine", "BlueJet", "Nimbus"}
)

type Options struct {
	DatasetPath       string
	SyntheticCount    int
	SyntheticBaseDate string
	// GeneratedCacheSize bounds how many generated flights stay resolvable by
	// trip id, least recently used go first
	GeneratedCacheSize int
	Location           *time.Location
	Now                func() time.Time
}

type Service struct {
	loc *time.Location
	now func() time.Time

	flights   []model.Flight
	tripIndex map[string]model.Flight
	generated *lru.Cache[string, model.Flight]
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	loc, err := time.LoadLocation(cfg.Catalog.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Catalog.Timezone, err)
	}

	return NewService(Options{
		DatasetPath:        cfg.Catalog.DatasetPath,
		SyntheticCount:     *cfg.Catalog.SyntheticCount,
		SyntheticBaseDate:  cfg.Catalog.SyntheticBaseDate,
		GeneratedCacheSize: cfg.Catalog.GeneratedCacheSize,
		Location:           loc,
	})
}

func NewService(opts Options) (*Service, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GeneratedCacheSize <= 0 {
		opts.GeneratedCacheSize = defaultGeneratedCacheSize
	}

	generated, err := lru.New[string, model.Flight](opts.GeneratedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create generated flight cache: %w", err)
	}

	data, err := readDataset(opts.DatasetPath)
	if err != nil {
		return nil, err
	}

	rows, err := parseDataset(data, opts.Location)
	if err != nil {
		return nil, err
	}
	loaded := len(rows)

	if opts.SyntheticCount > 0 {
		base := startOfDay(opts.Now().In(opts.Location))
		if opts.SyntheticBaseDate != "" {
			base, err = time.ParseInLocation(time.DateOnly, opts.SyntheticBaseDate, opts.Location)
			if err != nil {
				return nil, fmt.Errorf("invalid synthetic base date: %w", err)
			}
		}

		rows = append(rows, capitalFlights(opts.SyntheticCount, base)...)
	}

	s := &Service{
		loc:       opts.Location,
		now:       opts.Now,
		flights:   dedupe(rows),
		tripIndex: make(map[string]model.Flight),
		generated: generated,
	}

	for _, f := range s.flights {
		key := tripKey(f.Carrier, f.FlightNumber, f.Date)
		if _, ok := s.tripIndex[key]; !ok {
			s.tripIndex[key] = f
		}
	}

	slog.Info("Flight catalog loaded",
		"dataset_rows", loaded,
		"synthetic", opts.SyntheticCount,
		"unique", len(s.flights),
	)

	return s, nil
}

// Search returns flights for the route and date sorted by price. Routes absent
// from the dataset get a deterministic generated list.
func (s *Service) Search(origin, destination, date string) ([]model.Flight, error) {
	if err := s.validate(origin, destination, date); err != nil {
		return nil, err
	}

	flights := s.fromDataset(origin, destination, date)
	if len(flights) == 0 {
		flights = s.mockFlights(origin, destination, date)
	}

	sortByPrice(flights)

	return flights, nil
}

func (s *Service) Cheapest(origin, destination, date string) (*model.Flight, error) {
	flights, err := s.Search(origin, destination, date)
	if err != nil {
		return nil, err
	}

	if len(flights) == 0 {
		return nil, oops.In("catalog").Code(model.CodeNotFound).
			Wrapf(model.ErrNotFound, "no flights from %s to %s on %s", origin, destination, date)
	}

	best := flights[0]
	return &best, nil
}

// SuggestDestinations returns the cheapest flight per destination from origin.
// An empty date searches every date; a partial date such as 2025-12 matches by prefix.
func (s *Service) SuggestDestinations(origin, date string, limit int) ([]model.Flight, error) {
	if strings.TrimSpace(origin) == "" {
		return nil, validationError("origin is required")
	}

	if limit <= 0 {
		limit = defaultSuggestLimit
	}
	limit = min(limit, maxSuggestLimit)

	cheapestByDestination := make(map[string]model.Flight)
	var order []string

	for _, f := range s.fromAnyDestination(origin, date) {
		current, ok := cheapestByDestination[f.Destination]
		if !ok {
			order = append(order, f.Destination)
		}
		if !ok || f.Price < current.Price {
			cheapestByDestination[f.Destination] = f
		}
	}

	options := make([]model.Flight, 0, len(order))
	for _, destination := range order {
		options = append(options, cheapestByDestination[destination])
	}

	sortByPrice(options)

	return pie.Top(options, limit), nil
}

// RecommendFromOrigin returns the single cheapest flight leaving origin.
func (s *Service) RecommendFromOrigin(origin, date string) (*model.Flight, error) {
	if strings.TrimSpace(origin) == "" {
		return nil, validationError("origin is required")
	}

	options := s.fromAnyDestination(origin, date)
	if len(options) == 0 {
		return nil, oops.In("catalog").Code(model.CodeNotFound).
			Wrapf(model.ErrNotFound, "no flights from %s", origin)
	}

	sortByPrice(options)

	best := options[0]
	return &best, nil
}

// LookupByTripID resolves carrier-flightNumber-date. The date is the trailing
// segment and carrier and flight number split at the last remaining dash.
func (s *Service) LookupByTripID(tripID string) (model.Flight, bool) {
	m := tripIDPattern.FindStringSubmatch(strings.TrimSpace(tripID))
	if m == nil {
		return model.Flight{}, false
	}

	left, date := m[1], m[2]
	lastDash := strings.LastIndex(left, "-")
	if lastDash <= 0 {
		return model.Flight{}, false
	}

	key := tripKey(left[:lastDash], left[lastDash+1:], date)
	if f, ok := s.tripIndex[key]; ok {
		return f, true
	}

	return s.generated.Get(key)
}

// Now is the current time in the catalog zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) Today() string {
	return s.Now().Format(time.DateOnly)
}

func (s *Service) validate(origin, destination, date string) error {
	origin, destination, date = strings.TrimSpace(origin), strings.TrimSpace(destination), strings.TrimSpace(date)

	switch {
	case origin == "":
		return validationError("origin is required")
	case destination == "":
		return validationError("destination is required")
	case date == "":
		return validationError("date is required")
	case strings.EqualFold(origin, destination) || samePlace(origin, destination):
		return validationError("origin and destination must differ")
	case !datePattern.MatchString(date):
		return validationError("date must be in format YYYY-MM-DD")
	}

	day, err := time.ParseInLocation(time.DateOnly, date, s.loc)
	if err != nil {
		return validationError("date must be in format YYYY-MM-DD")
	}

	if day.Before(startOfDay(s.now().In(s.loc))) {
		return validationError("date is in the past; please provide a future date (YYYY-MM-DD)")
	}

	return nil
}

func (s *Service) fromDataset(origin, destination, date string) []model.Flight {
	origin, destination, date = strings.TrimSpace(origin), strings.TrimSpace(destination), strings.TrimSpace(date)

	return pie.Filter(s.flights, func(f model.Flight) bool {
		return f.Date == date &&
			matchesPlace(origin, f.Origin, f.OriginCity) &&
			matchesPlace(destination, f.Destination, f.DestinationCity)
	})
}

func (s *Service) fromAnyDestination(origin, date string) []model.Flight {
	origin, date = strings.TrimSpace(origin), strings.TrimSpace(date)

	return pie.Filter(s.flights, func(f model.Flight) bool {
		return (date == "" || strings.HasPrefix(f.Date, date)) &&
			matchesPlace(origin, f.Origin, f.OriginCity)
	})
}

// mockFlights is seeded by the hash of the query so identical queries return
// identical flights. Generated flights are indexed for trip id lookups.
func (s *Service) mockFlights(origin, destination, date string) []model.Flight {
	o := placeCode(origin)
	d := placeCode(destination)

	seed := xxhash.Sum64String(strings.ToUpper(strings.TrimSpace(origin)) + "|" +
		strings.ToUpper(strings.TrimSpace(destination)) + "|" + date)
	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	day, _ := time.ParseInLocation(time.DateOnly, date, s.loc)
	flights := make([]model.Flight, 0, len(mockCarriers))

	for i, carrier := range mockCarriers {
		base := float64(80 + rnd.IntN(120))
		taxes := roundCents(base * 0.21)
		departure := time.Date(day.Year(), day.Month(), day.Day(), 6+i*3, (i*13)%60, 0, 0, s.loc)
		arrival := departure.Add(3*time.Hour + 45*time.Minute)
		number := strings.ToUpper(strings.ReplaceAll(carrier, " ", "")[:2]) + strconv.Itoa((i+1)*100+rnd.IntN(100))

		flights = append(flights, model.Flight{
			Carrier:         carrier,
			FlightNumber:    number,
			Origin:          o,
			Destination:     d,
			Date:            date,
			Departure:       departure.Format(time.RFC3339),
			Arrival:         arrival.Format(time.RFC3339),
			Price:           roundCents(base + taxes),
			Currency:        "USD",
			OriginCity:      CityName(o),
			DestinationCity: CityName(d),
		})
	}

	for _, f := range flights {
		key := tripKey(f.Carrier, f.FlightNumber, f.Date)
		if _, ok := s.tripIndex[key]; !ok {
			s.generated.Add(key, f)
		}
	}

	return flights
}

func validationError(msg string) error {
	return oops.In("catalog").Code(model.CodeValidation).Wrapf(model.ErrValidation, "%s", msg)
}

func samePlace(a, b string) bool {
	ca, cb := ResolvePlace(a), ResolvePlace(b)
	return ca != "" && ca == cb
}

func placeCode(input string) string {
	if code := ResolvePlace(input); code != "" {
		return code
	}

	return strings.ToUpper(strings.TrimSpace(input))
}

func sortByPrice(flights []model.Flight) {
	sort.SliceStable(flights, func(i, j int) bool {
		return flights[i].Price < flights[j].Price
	})
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
