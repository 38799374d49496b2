// Package advisor suggests a price band for a job description. Suggestions
// are advisory and never touch stored quotes.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/models"
)

const (
	SourceHeuristic = "heuristic"
	SourceModel     = "model"

	minDescriptionLength = 10
	// Applied to the heuristic confidence when the model could not answer.
	fallbackPenalty = 0.7
)

type Advisor struct {
	modelURL   string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New returns an advisor. An empty modelURL disables the external model and
// every suggestion comes from the heuristic engine.
func New(modelURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *Advisor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Advisor{
		modelURL: strings.TrimRight(modelURL, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func Validate(req models.AIPricingRequest) error {
	fields := map[string]string{}
	if len(strings.TrimSpace(req.JobDescription)) < minDescriptionLength {
		fields["job_description"] = fmt.Sprintf("must be at least %d characters", minDescriptionLength)
	}
	if strings.TrimSpace(req.JobType) == "" {
		fields["job_type"] = "is required"
	}
	if req.TradieHourlyRate <= 0 {
		fields["tradie_hourly_rate"] = "must be greater than 0"
	}
	if req.EstimatedDuration != nil && *req.EstimatedDuration < 0 {
		fields["estimated_duration"] = "must not be negative"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid pricing request", fields)
	}
	return nil
}

// Suggest validates req and returns a price band. Model failures fall back to
// the heuristic with reduced confidence.
func (a *Advisor) Suggest(ctx context.Context, req models.AIPricingRequest) (*models.PricingSuggestion, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	heuristic := estimate(req)
	if a.modelURL == "" {
		return heuristic, nil
	}

	suggestion, err := a.askModel(ctx, req, heuristic)
	if err != nil {
		a.logger.WithError(err).WithField("job_type", req.JobType).Warn("pricing model unavailable, using heuristic")
		heuristic.Confidence = math.Round(heuristic.Confidence*fallbackPenalty*100) / 100
		heuristic.Notes = append(heuristic.Notes, "pricing model unavailable")
		return heuristic, nil
	}
	return suggestion, nil
}

type modelRequest struct {
	JobDescription    string   `json:"job_description"`
	JobType           string   `json:"job_type"`
	HourlyRate        float64  `json:"hourly_rate"`
	EstimatedDuration *float64 `json:"estimated_duration,omitempty"`
	Location          string   `json:"location,omitempty"`
	BaselineTotal     string   `json:"baseline_total"`
}

func (a *Advisor) askModel(ctx context.Context, req models.AIPricingRequest, baseline *models.PricingSuggestion) (*models.PricingSuggestion, error) {
	jsonData, err := json.Marshal(modelRequest{
		JobDescription:    req.JobDescription,
		JobType:           req.JobType,
		HourlyRate:        req.TradieHourlyRate,
		EstimatedDuration: req.EstimatedDuration,
		Location:          req.Location,
		BaselineTotal:     baseline.SuggestedTotal.StringFixed(2),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.modelURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing model returned status %d, body: %s", resp.StatusCode, string(body))
	}

	return parseModelResponse(body)
}

// parseModelResponse reads the model answer. Either a flat document or one
// nested under "data" is accepted.
func parseModelResponse(body []byte) (*models.PricingSuggestion, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("pricing model returned invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}

	total := root.Get("suggested_total").Float()
	if total <= 0 {
		return nil, fmt.Errorf("pricing model returned no suggested_total")
	}

	minTotal := root.Get("min_total").Float()
	if minTotal <= 0 || minTotal > total {
		minTotal = total * bandLow
	}
	maxTotal := root.Get("max_total").Float()
	if maxTotal < total {
		maxTotal = total * bandHigh
	}

	confidence := 0.5
	if c := root.Get("confidence"); c.Exists() {
		confidence = math.Max(0, math.Min(1, c.Float()))
	}

	var breakdown []models.PriceBreakdownLine
	root.Get("breakdown").ForEach(func(_, line gjson.Result) bool {
		label := line.Get("label").String()
		if label == "" {
			return true
		}
		breakdown = append(breakdown, models.PriceBreakdownLine{
			Label:  label,
			Amount: decimal.NewFromFloat(line.Get("amount").Float()).Round(2),
		})
		return true
	})

	var notes []string
	root.Get("notes").ForEach(func(_, note gjson.Result) bool {
		notes = append(notes, note.String())
		return true
	})

	return &models.PricingSuggestion{
		SuggestedTotal: round2(total),
		MinTotal:       round2(minTotal),
		MaxTotal:       round2(maxTotal),
		Confidence:     confidence,
		Breakdown:      breakdown,
		Source:         SourceModel,
		Notes:          notes,
	}, nil
}
