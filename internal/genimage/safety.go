package genimage

import (
	"context"
	"math/rand"
)

// SafetyLevel classifies a generated image.
type SafetyLevel string

const (
	SafetySafe     SafetyLevel = "safe"
	SafetyModerate SafetyLevel = "moderate"
	SafetyUnsafe   SafetyLevel = "unsafe"
)

// Classifier assigns a safety level to a generated image reference.
type Classifier interface {
	Classify(ctx context.Context, imageURL string) SafetyLevel
}

// WeightedClassifier is the stub classifier: a weighted random draw
// (90% safe, 8% moderate, 2% unsafe). A real classifier can replace it
// behind the same interface.
type WeightedClassifier struct {
	// Rand allows deterministic draws in tests; nil uses the global source.
	Rand *rand.Rand
}

func (c *WeightedClassifier) Classify(ctx context.Context, imageURL string) SafetyLevel {
	_ = ctx
	_ = imageURL
	var n float64
	if c.Rand != nil {
		n = c.Rand.Float64() * 100
	} else {
		n = rand.Float64() * 100
	}
	switch {
	case n < 90:
		return SafetySafe
	case n < 98:
		return SafetyModerate
	default:
		return SafetyUnsafe
	}
}
