package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var codePattern = regexp.MustCompile(`(?i)^[a-z]{3}$`)

var (
	aliasToCode = map[string]string{}
	codeToCity  = map[string]string{}
)

func init() {
	addPlace("SFO", "San Francisco", "Сан-Франциско", "SF")
	addPlace("JFK", "New York", "Нью-Йорк", "Нью-Йорка", "NYC")
	addPlace("LAX", "Los Angeles", "Лос-Анджелес", "LA")
	addPlace("IAD", "Washington", "Вашингтон", "Washington DC", "DC")

	addPlace("LHR", "London", "Лондон", "Лондона")
	addPlace("LGW", "London", "Gatwick")
	addPlace("CDG", "Paris", "Париж", "Парижа")
	addPlace("BER", "Berlin", "Берлин", "Берлина")
	addPlace("MAD", "Madrid", "Мадрид", "Мадрида")
	addPlace("FCO", "Rome", "Рим", "Рима")
	addPlace("DUB", "Dublin", "Дублин")
	addPlace("LIS", "Lisbon", "Лиссабон")
	addPlace("VIE", "Vienna", "Вена")
	addPlace("PRG", "Prague", "Прага")
	addPlace("WAW", "Warsaw", "Варшава")
	addPlace("AMS", "Amsterdam", "Амстердам")
	addPlace("ZRH", "Zurich", "Цюрих", "Zürich")
	addPlace("OSL", "Oslo", "Осло")
	addPlace("CPH", "Copenhagen", "Копенгаген")
	addPlace("HEL", "Helsinki", "Хельсинки")
	addPlace("ARN", "Stockholm", "Стокгольм")

	addPlace("SVO", "Moscow", "Москва", "Москвы", "Москву")
	addPlace("PEK", "Beijing", "Пекин", "Beijing City")
	addPlace("HND", "Tokyo", "Токио")
	addPlace("ICN", "Seoul", "Сеул")
	addPlace("BKK", "Bangkok", "Бангкок")
	addPlace("SIN", "Singapore", "Сингапур")
	addPlace("CGK", "Jakarta", "Джакарта")
	addPlace("DEL", "New Delhi", "Дели", "Delhi")
	addPlace("CBR", "Canberra", "Канберра")
	addPlace("WLG", "Wellington", "Веллингтон")
	addPlace("MNL", "Manila", "Манила")
	addPlace("HAN", "Hanoi", "Ханой")
	addPlace("RUH", "Riyadh", "Эр-Рияд")
	addPlace("AUH", "Abu Dhabi", "Абу-Даби")
	addPlace("DXB", "Dubai", "Дубай")
	addPlace("DOH", "Doha", "Доха")
	addPlace("CAI", "Cairo", "Каир")
	addPlace("NBO", "Nairobi", "Найроби")
	addPlace("JNB", "Johannesburg", "Йоханнесбург")
	addPlace("ADD", "Addis Ababa", "Аддис-Абеба")
	addPlace("ATH", "Athens", "Афины")
	addPlace("TLV", "Tel Aviv", "Тель-Авив")
	addPlace("TUN", "Tunis", "Тунис")
	addPlace("ALG", "Algiers", "Алжир")
	addPlace("DKR", "Dakar", "Дакар")
}

// addPlace keeps the first code registered for an alias, so "London" stays LHR.
func addPlace(code, city string, aliases ...string) {
	code = strings.ToUpper(code)
	if _, ok := codeToCity[code]; !ok {
		codeToCity[code] = city
	}

	for _, alias := range append([]string{city, code}, aliases...) {
		key := slug(alias)
		if _, ok := aliasToCode[key]; !ok {
			aliasToCode[key] = code
		}
	}
}

// slug lowercases, folds diacritics, keeps letters and digits and collapses
// whitespace and dashes into single spaces.
func slug(s string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(strings.TrimSpace(s)),
	)
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(s))
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// ResolvePlace returns the airport code for a code, city name or alias, or ""
// when the input is unknown.
func ResolvePlace(input string) string {
	in := strings.TrimSpace(input)
	if in == "" {
		return ""
	}

	if codePattern.MatchString(in) {
		return strings.ToUpper(in)
	}

	return aliasToCode[slug(in)]
}

// KnownCode reports whether code is a listed airport code.
func KnownCode(code string) bool {
	_, ok := codeToCity[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// CityName returns the canonical city for a code.
func CityName(code string) string {
	return codeToCity[strings.ToUpper(code)]
}

func matchesPlace(input, rowCode, rowCity string) bool {
	if strings.TrimSpace(input) == "" {
		return false
	}

	if code := ResolvePlace(input); code != "" {
		return strings.EqualFold(code, rowCode)
	}

	if s := slug(input); s != "" && s == slug(rowCity) {
		return true
	}

	return strings.EqualFold(input, rowCode) || strings.EqualFold(input, rowCity)
}
