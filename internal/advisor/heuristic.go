package advisor

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"tradiehub-backend/internal/models"
)

type jobProfile struct {
	baseHours     float64
	materialRatio float64
}

var profiles = map[string]jobProfile{
	"plumbing":    {baseHours: 3, materialRatio: 0.35},
	"electrical":  {baseHours: 3, materialRatio: 0.30},
	"carpentry":   {baseHours: 6, materialRatio: 0.45},
	"painting":    {baseHours: 8, materialRatio: 0.25},
	"roofing":     {baseHours: 10, materialRatio: 0.50},
	"landscaping": {baseHours: 8, materialRatio: 0.40},
	"tiling":      {baseHours: 7, materialRatio: 0.40},
	"cleaning":    {baseHours: 4, materialRatio: 0.10},
	"handyman":    {baseHours: 2, materialRatio: 0.20},
}

var defaultProfile = jobProfile{baseHours: 4, materialRatio: 0.30}

var metroAreas = []string{"sydney", "melbourne", "brisbane", "perth", "adelaide", "canberra", "hobart", "darwin"}

const (
	metroUplift = 1.10
	// Descriptions longer than this many words usually hide extra scope.
	detailedWordCount = 60
	complexityUplift  = 1.25
	bandLow           = 0.85
	bandHigh          = 1.20
	maxConfidence     = 0.90
)

func isMetro(location string) bool {
	location = strings.ToLower(location)
	for _, city := range metroAreas {
		if strings.Contains(location, city) {
			return true
		}
	}
	return false
}

func round2(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// estimate builds a price band from job type defaults and whatever the
// caller told us. Sparse input lowers the confidence, it never fails.
func estimate(req models.AIPricingRequest) *models.PricingSuggestion {
	jobType := strings.ToLower(strings.TrimSpace(req.JobType))
	profile, known := profiles[jobType]
	if !known {
		profile = defaultProfile
	}

	var notes []string
	confidence := 0.45
	if known {
		confidence += 0.15
	} else {
		notes = append(notes, "unrecognised job type, using general rates")
	}

	hours := profile.baseHours
	if req.EstimatedDuration != nil && *req.EstimatedDuration > 0 {
		hours = *req.EstimatedDuration
		confidence += 0.15
	} else {
		notes = append(notes, "no duration given, estimated from job type")
		if len(strings.Fields(req.JobDescription)) > detailedWordCount {
			hours *= complexityUplift
		}
	}

	if len(req.JobDescription) >= 50 {
		confidence += 0.05
	}

	labor := hours * req.TradieHourlyRate
	materials := labor * profile.materialRatio
	base := labor + materials

	breakdown := []models.PriceBreakdownLine{
		{Label: "labor", Amount: round2(labor)},
		{Label: "materials", Amount: round2(materials)},
	}

	total := base
	if req.Location != "" {
		confidence += 0.10
		if isMetro(req.Location) {
			adjustment := base * (metroUplift - 1)
			total += adjustment
			breakdown = append(breakdown, models.PriceBreakdownLine{Label: "location adjustment", Amount: round2(adjustment)})
		}
	}

	return &models.PricingSuggestion{
		SuggestedTotal: round2(total),
		MinTotal:       round2(total * bandLow),
		MaxTotal:       round2(total * bandHigh),
		Confidence:     math.Min(confidence, maxConfidence),
		Breakdown:      breakdown,
		Source:         SourceHeuristic,
		Notes:          notes,
	}
}
