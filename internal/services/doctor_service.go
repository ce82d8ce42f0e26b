package services

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/models"
)

const doctorsPerPick = 2

type DoctorService struct {
	db core.DbClient

	mu  sync.Mutex
	rng *rand.Rand
}

func NewDoctorService(db core.DbClient, rng *rand.Rand) *DoctorService {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &DoctorService{db: db, rng: rng}
}

// irregularForms pairs a field with its practitioner where the -ist/-y rule
// does not apply.
var irregularForms = map[string]string{
	"pediatrics":  "pediatrician",
	"geriatrics":  "geriatrician",
	"obstetrics":  "obstetrician",
	"orthopedics": "orthopedist",
	"surgery":     "surgeon",
}

// SpecialityCandidates normalizes a speciality and adds its counterpart
// between field and practitioner, so "Cardiology" also matches
// "cardiologist" and "Pediatrics" matches "pediatrician".
func SpecialityCandidates(speciality string) []string {
	s := strings.ToLower(strings.TrimSpace(speciality))
	if s == "" {
		return nil
	}
	out := []string{s}
	if p, ok := irregularForms[s]; ok {
		return append(out, p)
	}
	for field, p := range irregularForms {
		if p == s {
			return append(out, field)
		}
	}
	switch {
	case strings.HasSuffix(s, "ist"):
		out = append(out, strings.TrimSuffix(s, "ist")+"y")
	case strings.HasSuffix(s, "y"):
		out = append(out, strings.TrimSuffix(s, "y")+"ist")
	}
	return out
}

func (s *DoctorService) FindBySpeciality(ctx context.Context, speciality string) ([]models.Doctor, error) {
	cands := SpecialityCandidates(speciality)
	if len(cands) == 0 {
		return nil, nil
	}
	return s.db.GetDoctorsBySpeciality(ctx, cands)
}

// Pick applies SelectDoctors with the service's random source.
func (s *DoctorService) Pick(doctors []models.Doctor, city string) []models.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SelectDoctors(doctors, city, s.rng)
}

func cityOf(d models.Doctor) string {
	if strings.TrimSpace(d.City) == "" {
		return "Unknown"
	}
	return d.City
}

// SelectDoctors picks up to two doctors: from the requested city when it has
// any, otherwise from a random city with at least two, otherwise from all.
func SelectDoctors(doctors []models.Doctor, city string, rng *rand.Rand) []models.Doctor {
	byCity := map[string][]models.Doctor{}
	var cities []string
	for _, d := range doctors {
		c := cityOf(d)
		if _, ok := byCity[c]; !ok {
			cities = append(cities, c)
		}
		byCity[c] = append(byCity[c], d)
	}

	if city = strings.TrimSpace(city); city != "" {
		for _, c := range cities {
			if strings.EqualFold(c, city) {
				return pickRandom(byCity[c], rng)
			}
		}
	}

	var eligible []string
	for _, c := range cities {
		if len(byCity[c]) >= doctorsPerPick {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return pickRandom(doctors, rng)
	}
	return pickRandom(byCity[eligible[rng.IntN(len(eligible))]], rng)
}

func pickRandom(in []models.Doctor, rng *rand.Rand) []models.Doctor {
	cp := append([]models.Doctor(nil), in...)
	rng.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	if len(cp) > doctorsPerPick {
		cp = cp[:doctorsPerPick]
	}
	return cp
}
