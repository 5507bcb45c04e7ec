// Package synth generates synthetic personal-data records for load and demo traffic.
package synth

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

const (
	// DefaultAgeMax bounds generated dates of birth to this many years before today.
	DefaultAgeMax = 99

	dateOfBirthLayout = "2006-01-02"
	eventTimeLayout   = "2006-01-02T15:04:05.000000"

	ssnMin = 100000000
	ssnMax = 999999999 // exclusive
)

// Names is the catalog generated record names are drawn from.
var Names = []string{
	"Aarakocra", "Aasimar", "Beholder", "Bugbear", "Centaur", "Changeling", "Deep Gnome", "Deva",
	"Dragonborn", "Drow", "Dwarf", "Eladrin", "Elf", "Firbolg", "Genasi", "Githzerai", "Gnoll",
	"Gnome", "Goblin", "Goliath", "Hag", "Half-Elf", "Half-Orc", "Halfling", "Hobgoblin",
	"Kalashtar", "Kenku", "Kobold", "Lizardfolk", "Loxodon", "Mind Flayer", "Minotaur", "Orc",
	"Shardmind", "Shifter", "Simic Hybrid", "Tabaxi", "Tiefling", "Tortle", "Triton", "Vedalken",
	"Warforged", "Wilden", "Yuan-Ti",
}

// Generator produces random records. It is not safe for concurrent use.
type Generator struct {
	rng    *rand.Rand
	now    func() time.Time
	ageMax int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the generator deterministic.
func WithSeed(seed1, seed2 uint64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed1, seed2)) }
}

// WithClock overrides the time source used for dates of birth and event times.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithAgeMax sets the maximum age in years. Non-positive values are ignored.
func WithAgeMax(years int) Option {
	return func(g *Generator) {
		if years > 0 {
			g.ageMax = years
		}
	}
}

// NewGenerator creates a Generator seeded from the runtime's random source.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:    time.Now,
		ageMax: DefaultAgeMax,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a new random record.
func (g *Generator) Next() domain.Record {
	now := g.now()

	name := Names[g.rng.IntN(len(Names))]
	dob := g.dateOfBirth(now)
	gender := domain.GenderMale
	if g.rng.IntN(2) == 1 {
		gender = domain.GenderFemale
	}
	// Plain decimal formatting: no zero padding.
	ssn := strconv.Itoa(ssnMin + g.rng.IntN(ssnMax-ssnMin))
	consent := []byte("false")
	if g.rng.IntN(2) == 1 {
		consent = []byte("true")
	}
	eventTime := now.Format(eventTimeLayout)

	return domain.Record{
		Name:        &name,
		DateOfBirth: &dob,
		Gender:      &gender,
		SSN:         &ssn,
		Consent:     consent,
		EventTime:   &eventTime,
	}
}

// dateOfBirth picks today minus a uniform number of days in [0, 365*ageMax].
func (g *Generator) dateOfBirth(now time.Time) string {
	days := g.rng.IntN(365*g.ageMax + 1)
	return now.AddDate(0, 0, -days).Format(dateOfBirthLayout)
}
