package intent

import (
	"regexp"
	"strconv"
	"strings"

	"flightdesk/app/service/catalog"
	"flightdesk/app/service/selection"
)

const maxCriteriaTokens = 6

var (
	isoDatePattern   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	bookingIDPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)

	cancelPattern      = regexp.MustCompile(`\b(cancel|delete|remove)\b|отмен|удали`)
	bookingWordPattern = regexp.MustCompile(`\b(booking|bookings|reservation|reservations)\b|брон`)

	listBookingsPattern = regexp.MustCompile(`\b(show|list|view|see|display|get)\s+(me\s+)?(all\s+)?(of\s+)?(my\s+)?bookings\b|\bmy\s+bookings\b|\bbookings\s+list\b`)
	listBookingsRU      = []string{"мои бронирования", "мои брони", "покажи брон", "список брон", "покажи мои брон"}
	bareListBookings    = map[string]bool{"bookings": true, "booking list": true, "бронирования": true, "брони": true}

	reschedulePattern = regexp.MustCompile(`\breschedul|\b(change|move)\s+(my\s+|the\s+)?(booking|flight|reservation|date)\b|перенес|перенос|(поменя|измени)\S*\s+дат`)

	confirmPattern = regexp.MustCompile(`\bconfirm|\bgo ahead\b|\bproceed\b|\bdo it\b|подтвер`)
	affirmatives   = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "sure": true, "ok": true, "okay": true, "y": true,
		"да": true, "ок": true, "ага": true, "конечно": true, "давай": true,
	}

	createPattern = regexp.MustCompile(`\b(book|reserve)\s+(it|that|this|that one|this one|the one|one|for me|me)\b` +
		`|\b(book|reserve)\s+(the\s+)?(first|second|third|fourth|fifth|last|cheapest|earliest|latest|#?\d{1,2}(st|nd|rd|th)?)\b` +
		`|забронируй|бронируй|забронировать`)
	createWords = map[string]bool{"book": true, "reserve": true}

	cheapestPattern = regexp.MustCompile(`\b(cheapest|lowest|cheap)\b|дешев`)
	earliestPattern = regexp.MustCompile(`\bearliest\b|самый ранний|пораньше`)
	latestPattern   = regexp.MustCompile(`\blatest\b|поздн`)
	nonstopPattern  = regexp.MustCompile(`\bnon-?stop\b|\bdirect\b|без пересад|прям(ой|ые)`)
	morningPattern  = regexp.MustCompile(`\bmorning\b|утр`)
	eveningPattern  = regexp.MustCompile(`\bevening\b|вечер`)
	maxPricePattern = regexp.MustCompile(`(?:\bunder|\bbelow|\bless than|\bcheaper than|\bup to|\bmax|до|дешевле)\s*\$?\s*(\d+(?:\.\d+)?)`)

	advicePattern = regexp.MustCompile(`\b(recommend|suggest|advise|advice)|where (should|can|could) i (go|fly)|посоветуй|порекомендуй|предложи|куда (лететь|полететь|слетать)`)

	iataRoutePattern = regexp.MustCompile(`\b([A-Z]{3})\b\s*(?:->|→|—|–|-|\bto\b)?\s*\b([A-Z]{3})\b`)
	fromToPattern    = regexp.MustCompile(`(?i)\bfrom\s+(.+?)\s+to\s+(.+)`)
	toFromPattern    = regexp.MustCompile(`(?i)\bto\s+(.+?)\s+from\s+(.+)`)
	ruRoutePattern   = regexp.MustCompile(`(?i)(?:^|\s)из\s+(.+?)\s+(?:в|во)\s+(.+)`)
	fromPattern      = regexp.MustCompile(`(?i)\bfrom\s+(.+)`)
	ruFromPattern    = regexp.MustCompile(`(?i)(?:^|\s)из\s+(.+)`)

	ordinalNumberPattern = regexp.MustCompile(`^#?(\d{1,2})(st|nd|rd|th)?$`)
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"первый": 1, "первая": 1, "первое": 1, "первую": 1,
	"второй": 2, "вторая": 2, "второе": 2, "вторую": 2,
	"третий": 3, "третья": 3, "третье": 3, "третью": 3,
	"четвертый": 4, "четвёртый": 4, "четвертая": 4, "четвёртая": 4, "четвертую": 4, "четвёртую": 4,
	"пятый": 5, "пятая": 5, "пятое": 5, "пятую": 5,
}

var lastWords = map[string]bool{
	"last": true, "последний": true, "последняя": true, "последнее": true, "последнюю": true,
}

var ordinalMarkers = map[string]bool{
	"option": true, "number": true, "no": true, "#": true, "booking": true, "flight": true,
	"вариант": true, "номер": true, "бронь": true, "рейс": true,
}

var fillerWords = map[string]bool{
	"the": true, "a": true, "one": true, "please": true, "pls": true, "i": true, "i'll": true, "ill": true,
	"take": true, "choose": true, "pick": true, "select": true, "want": true, "let's": true, "lets": true,
	"go": true, "with": true, "flight": true, "that": true, "it": true, "this": true, "my": true, "me": true,
	"пожалуйста": true, "возьми": true, "беру": true, "выбираю": true, "давай": true, "рейс": true, "вариант": true,
	"номер": true, "option": true, "number": true, "#": true,
}

var cancelWords = map[string]bool{
	"cancel": true, "delete": true, "remove": true, "отмени": true, "отменить": true, "удали": true, "удалить": true,
}

var dateWords = map[string]bool{
	"today": true, "tomorrow": true, "tonight": true, "weekend": true,
	"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
	"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true, "aug": true,
	"sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true, "saturday": true, "sunday": true,
	"сегодня": true, "завтра": true, "послезавтра": true, "мая": true, "май": true,
}

var datePrefixes = []string{
	"выходны", "недел",
	"январ", "феврал", "март", "апрел", "июн", "июл", "август", "сентябр", "октябр", "ноябр", "декабр",
	"понедельник", "вторник", "сред", "четверг", "пятниц", "суббот", "воскресень",
}

var datePhrases = []string{"next week", "day after", "this week"}

var placeStopWords = map[string]bool{
	"on": true, "for": true, "at": true, "in": true, "by": true, "around": true, "next": true, "this": true,
	"please": true, "and": true, "with": true, "departing": true, "leaving": true, "flights": true,
	"на": true, "пожалуйста": true, "и": true,
}

type route struct {
	origin      string
	destination string
}

// tokenize lowercases, drops sentence punctuation and splits on whitespace.
func tokenize(lower string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '!', '?', ';', ':', '(', ')', '"':
			return ' '
		}
		return r
	}, lower)

	return strings.Fields(cleaned)
}

func hasDateHint(lower string) bool {
	if strings.ContainsAny(lower, "0123456789") {
		return true
	}

	for _, token := range tokenize(lower) {
		if isDateWord(token) {
			return true
		}
	}

	for _, phrase := range datePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	return false
}

func isDateWord(token string) bool {
	if dateWords[token] {
		return true
	}

	for _, prefix := range datePrefixes {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}

	return false
}

func isListBookings(m *message) bool {
	if listBookingsPattern.MatchString(m.lower) {
		return true
	}

	for _, phrase := range listBookingsRU {
		if strings.Contains(m.lower, phrase) {
			return true
		}
	}

	return bareListBookings[strings.Join(m.tokens, " ")]
}

func isConfirmation(m *message) bool {
	if confirmPattern.MatchString(m.lower) {
		return true
	}

	return len(m.tokens) > 0 && onlyWords(m.tokens, affirmatives, map[string]bool{"please": true, "пожалуйста": true})
}

func isCreate(m *message) bool {
	if createPattern.MatchString(m.lower) {
		return true
	}

	hasVerb := false
	for _, token := range m.tokens {
		if createWords[token] {
			hasVerb = true
		}
	}

	return hasVerb && onlyWords(m.tokens, createWords, map[string]bool{"please": true, "it": true, "now": true})
}

// onlyWords reports whether every token belongs to one of the sets.
func onlyWords(tokens []string, sets ...map[string]bool) bool {
	if len(tokens) == 0 {
		return false
	}

	for _, token := range tokens {
		found := false
		for _, set := range sets {
			if set[token] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func ordinalToken(token string) int {
	if n, ok := ordinalWords[token]; ok {
		return n
	}

	if m := ordinalNumberPattern.FindStringSubmatch(token); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n
		}
	}

	return 0
}

// parseOrdinal finds the first ordinal in the tokens: first..fifth, 2nd, #3,
// "option 2" and the russian forms. A bare number counts only after a marker
// or cancel word or with a suffix, except when it is the only token.
func parseOrdinal(tokens []string) (int, bool) {
	for i, token := range tokens {
		if lastWords[token] {
			return 0, true
		}

		if n, ok := ordinalWords[token]; ok {
			return n, false
		}

		m := ordinalNumberPattern.FindStringSubmatch(token)
		if m == nil {
			continue
		}

		explicit := m[2] != "" || strings.HasPrefix(token, "#") || len(tokens) == 1 ||
			i > 0 && (ordinalMarkers[tokens[i-1]] || cancelWords[tokens[i-1]])
		if !explicit {
			continue
		}

		if n := ordinalToken(token); n > 0 {
			return n, false
		}
	}

	return 0, false
}

// ordinalOnly accepts messages made of an ordinal and filler words, such as
// "the second one" or "option 3".
func ordinalOnly(tokens []string) (int, bool, bool) {
	if len(tokens) == 0 {
		return 0, false, false
	}

	n, last := 0, false
	for _, token := range tokens {
		switch {
		case lastWords[token]:
			last = true
		case ordinalToken(token) > 0:
			if n == 0 {
				n = ordinalToken(token)
			}
		case fillerWords[token]:
		default:
			return 0, false, false
		}
	}

	if last {
		n = 0
	}

	return n, last, n > 0 || last
}

func criteriaOnly(tokens []string) bool {
	return len(tokens) <= maxCriteriaTokens
}

func extractCriteria(lower string) selection.Criteria {
	c := selection.Criteria{
		Cheapest: cheapestPattern.MatchString(lower),
		Earliest: earliestPattern.MatchString(lower),
		Latest:   latestPattern.MatchString(lower),
		Nonstop:  nonstopPattern.MatchString(lower),
		Date:     isoDatePattern.FindString(lower),
	}

	switch {
	case morningPattern.MatchString(lower):
		c.TimeOfDay = selection.TimeOfDayMorning
	case eveningPattern.MatchString(lower):
		c.TimeOfDay = selection.TimeOfDayEvening
	}

	if m := maxPricePattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			c.MaxPrice = v
			if strings.Contains(m[0], "дешевле") {
				c.Cheapest = false
			}
		}
	}

	return c
}

// extractRoute finds an origin and destination: a pair of listed uppercase
// airport codes, then "from X to Y", "to Y from X" and the russian "из X в Y".
func extractRoute(raw string) *route {
	// a rejected pair may still start one, so the scan resumes at its second code
	for start := 0; start < len(raw); {
		loc := iataRoutePattern.FindStringSubmatchIndex(raw[start:])
		if loc == nil {
			break
		}

		origin, destination := raw[start+loc[2]:start+loc[3]], raw[start+loc[4]:start+loc[5]]
		if origin != destination && catalog.KnownCode(origin) && catalog.KnownCode(destination) {
			return &route{origin: origin, destination: destination}
		}

		start += loc[4]
	}

	if m := fromToPattern.FindStringSubmatch(raw); m != nil {
		if r := newRoute(m[1], m[2]); r != nil {
			return r
		}
	}

	if m := toFromPattern.FindStringSubmatch(raw); m != nil {
		if r := newRoute(m[2], m[1]); r != nil {
			return r
		}
	}

	if m := ruRoutePattern.FindStringSubmatch(raw); m != nil {
		if r := newRoute(m[1], m[2]); r != nil {
			return r
		}
	}

	return nil
}

func newRoute(origin, destination string) *route {
	origin, destination = cleanPlace(origin), cleanPlace(destination)
	if origin == "" || destination == "" {
		return nil
	}

	return &route{origin: origin, destination: destination}
}

func extractOrigin(raw string) string {
	for _, pattern := range []*regexp.Regexp{fromPattern, ruFromPattern} {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			if origin := cleanPlace(m[1]); origin != "" {
				return origin
			}
		}
	}

	return ""
}

// cleanPlace keeps the leading words of a captured place name and stops at
// punctuation, digits, dates and connecting words.
func cleanPlace(s string) string {
	var words []string

	for _, word := range strings.Fields(s) {
		trimmed := strings.TrimRight(word, ",.!?;:")
		lw := strings.ToLower(trimmed)

		if lw == "" || placeStopWords[lw] || isDateWord(lw) || strings.ContainsAny(lw, "0123456789") {
			break
		}

		words = append(words, trimmed)

		if trimmed != word {
			break
		}
	}

	return strings.Join(words, " ")
}
