package catalog

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"flightdesk/app/model"
)

//go:embed data/flights.csv
var embeddedDataset []byte

const (
	minColumns         = 11
	syntheticSeed      = 424242
	syntheticDateRange = 10
)

var capitals = [][2]string{
	{"LHR", "London"}, {"CDG", "Paris"}, {"BER", "Berlin"}, {"MAD", "Madrid"}, {"FCO", "Rome"},
	{"IAD", "Washington"}, {"MEX", "Mexico City"}, {"BSB", "Brasilia"}, {"EZE", "Buenos Aires"},
	{"SVO", "Moscow"}, {"PEK", "Beijing"}, {"HND", "Tokyo"}, {"ICN", "Seoul"}, {"BKK", "Bangkok"},
	{"SIN", "Singapore"}, {"CGK", "Jakarta"}, {"DEL", "New Delhi"}, {"CBR", "Canberra"}, {"WLG", "Wellington"},
	{"MNL", "Manila"}, {"HAN", "Hanoi"}, {"RUH", "Riyadh"}, {"AUH", "Abu Dhabi"}, {"DOH", "Doha"},
	{"CAI", "Cairo"}, {"NBO", "Nairobi"}, {"JNB", "Johannesburg"}, {"ADD", "Addis Ababa"}, {"ATH", "Athens"},
	{"OSL", "Oslo"}, {"CPH", "Copenhagen"}, {"ARN", "Stockholm"}, {"HEL", "Helsinki"}, {"DUB", "Dublin"},
	{"LIS", "Lisbon"}, {"VIE", "Vienna"}, {"PRG", "Prague"}, {"ZAG", "Zagreb"}, {"BUD", "Budapest"},
	{"BTS", "Bratislava"}, {"WAW", "Warsaw"}, {"BRU", "Brussels"}, {"AMS", "Amsterdam"}, {"ZRH", "Zurich"},
	{"IST", "Istanbul"}, {"TLV", "Tel Aviv"}, {"TUN", "Tunis"}, {"ALG", "Algiers"}, {"DKR", "Dakar"},
}

var capitalCarriers = []string{"CapitalAir", "MetroFly", "EuroWings", "GlobeAir"}

func readDataset(path string) ([]byte, error) {
	if path == "" {
		return embeddedDataset, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	return data, nil
}

// parseDataset skips the header, short rows and rows with unparsable times.
func parseDataset(data []byte, loc *time.Location) ([]model.Flight, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		flights []model.Flight
		header  = true
	)

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse dataset: %w", err)
		}

		if header {
			header = false
			continue
		}

		if len(row) < minColumns {
			continue
		}

		flight, ok := parseRow(row, loc)
		if !ok {
			continue
		}

		flights = append(flights, flight)
	}

	return flights, nil
}

func parseRow(row []string, loc *time.Location) (model.Flight, bool) {
	day, err := time.ParseInLocation(time.DateOnly, row[4], loc)
	if err != nil {
		return model.Flight{}, false
	}

	departure, err := atClock(day, row[5])
	if err != nil {
		return model.Flight{}, false
	}

	arrival, err := atClock(day, row[6])
	if err != nil {
		return model.Flight{}, false
	}
	if arrival.Before(departure) {
		arrival = arrival.AddDate(0, 0, 1)
	}

	price, err := strconv.ParseFloat(row[7], 64)
	if err != nil || price < 0 {
		price = 0
	}

	flight := model.Flight{
		Carrier:         row[0],
		FlightNumber:    row[1],
		Origin:          strings.ToUpper(row[2]),
		Destination:     strings.ToUpper(row[3]),
		Date:            row[4],
		Departure:       departure.Format(time.RFC3339),
		Arrival:         arrival.Format(time.RFC3339),
		Price:           price,
		Currency:        row[8],
		OriginCity:      row[9],
		DestinationCity: row[10],
	}

	if len(row) > minColumns && strings.TrimSpace(row[11]) != "" {
		if stops, err := strconv.Atoi(strings.TrimSpace(row[11])); err == nil {
			flight.Stops = &stops
		}
	}

	return flight, true
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// capitalFlights generates count flights between capitals over syntheticDateRange
// days starting at base. The sequence depends only on count and base.
func capitalFlights(count int, base time.Time) []model.Flight {
	rnd := rand.New(rand.NewPCG(syntheticSeed, syntheticSeed))
	flights := make([]model.Flight, 0, count)

	for i := range count {
		oi := rnd.IntN(len(capitals))
		di := rnd.IntN(len(capitals))
		if di == oi {
			di = (di + 1) % len(capitals)
		}

		day := base.AddDate(0, 0, rnd.IntN(syntheticDateRange))
		depH := 5 + rnd.IntN(18)
		depM := rnd.IntN(4) * 15
		durH := 2 + rnd.IntN(9)
		price := float64(120 + rnd.IntN(600))

		departure := time.Date(day.Year(), day.Month(), day.Day(), depH, depM, 0, 0, day.Location())
		arrival := departure.Add(time.Duration(durH)*time.Hour + 30*time.Minute)
		carrier := capitalCarriers[i%len(capitalCarriers)]
		stops := rnd.IntN(2)

		flights = append(flights, model.Flight{
			Carrier:         carrier,
			FlightNumber:    strings.ToUpper(carrier[:2]) + strconv.Itoa(1000+i),
			Origin:          capitals[oi][0],
			Destination:     capitals[di][0],
			Date:            day.Format(time.DateOnly),
			Departure:       departure.Format(time.RFC3339),
			Arrival:         arrival.Format(time.RFC3339),
			Price:           price,
			Currency:        "USD",
			Stops:           &stops,
			OriginCity:      capitals[oi][1],
			DestinationCity: capitals[di][1],
		})
	}

	return flights
}

func uniqueKey(f model.Flight) string {
	return strings.ToLower(model.NormalizeCarrier(f.Carrier) + "|" + f.FlightNumber + "|" + f.Date)
}

func tripKey(carrier, flightNumber, date string) string {
	return strings.ToLower(model.NormalizeCarrier(carrier) + "-" + flightNumber + "-" + date)
}

func dedupe(flights []model.Flight) []model.Flight {
	seen := make(map[string]struct{}, len(flights))
	out := make([]model.Flight, 0, len(flights))

	for _, f := range flights {
		key := uniqueKey(f)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, f)
	}

	return out
}
