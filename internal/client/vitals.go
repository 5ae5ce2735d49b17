package client

import (
	"math"
	"math/rand/v2"

	"github.com/pscheid92/wardwatch/internal/domain"
)

// VitalsGenerator produces readings with heart rate 60-109 bpm, oxygen
// 90-99 % and temperature 36.0-38.0 °C.
type VitalsGenerator struct {
	rng *rand.Rand
}

func NewVitalsGenerator(rng *rand.Rand) *VitalsGenerator {
	return &VitalsGenerator{rng: rng}
}

func (g *VitalsGenerator) Next() domain.Reading {
	temp := 36.0 + g.rng.Float64()*2.0
	return domain.Reading{
		HeartRate:   60 + g.rng.IntN(50),
		OxygenLevel: 90 + g.rng.IntN(10),
		Temperature: math.Round(temp*10) / 10,
	}
}
