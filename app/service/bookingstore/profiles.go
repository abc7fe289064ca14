package bookingstore

import (
	"encoding/json"
	"sort"
	"time"

	"flightdesk/app/model"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var profileNamespace = uuid.MustParse("6f1c1d2e-4b1a-4c57-9a55-0e3d7f0b8a10")

// demo customers served read-only next to the bookings
var seedProfiles = []struct {
	userID, name, email, phone, tier, prefs string
}{
	{"u-100", "Alice Johnson", "alice@example.com", "+1-202-555-0100", "GOLD", `{"seat":"aisle","bags":1}`},
	{"u-101", "Bob Smith", "bob@example.com", "+1-202-555-0101", "SILVER", `{"seat":"window","meal":"vegan"}`},
	{"u-102", "Carol Lee", "carol@example.com", "+1-202-555-0102", "PLATINUM", `{"notify":true}`},
	{"u-103", "Diego Martinez", "diego@example.com", "+34-91-555-0103", "BRONZE", `{"lang":"es"}`},
	{"u-104", "Eva Müller", "eva@example.de", "+49-30-555-0104", "GOLD", `{"lang":"de","seat":"any"}`},
}

// ProfileID is the stable id of the seeded profile owned by userID.
func ProfileID(userID string) string {
	return uuid.NewSHA1(profileNamespace, []byte(userID)).String()
}

func newProfiles(now time.Time) map[string]model.Profile {
	result := make(map[string]model.Profile, len(seedProfiles))

	for _, seed := range seedProfiles {
		p := model.Profile{
			ID:          ProfileID(seed.userID),
			UserID:      seed.userID,
			Name:        seed.name,
			Email:       seed.email,
			Phone:       seed.phone,
			LoyaltyTier: seed.tier,
			Preferences: json.RawMessage(seed.prefs),
			CreatedAt:   now.UTC(),
			UpdatedAt:   now.UTC(),
		}
		result[p.ID] = p
	}

	return result
}

func (s *Service) handleListProfiles(c *fiber.Ctx) error {
	result := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})

	return c.JSON(result)
}

func (s *Service) handleGetProfile(c *fiber.Ctx) error {
	id := c.Params("id")

	if p, ok := s.profiles[id]; ok {
		return c.JSON(p)
	}

	for _, p := range s.profiles {
		if p.UserID == id {
			return c.JSON(p)
		}
	}

	return c.Status(fiber.StatusNotFound).JSON(problem(model.CodeNotFound, "profile not found: "+id))
}
