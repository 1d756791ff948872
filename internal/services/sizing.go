package services

import (
	"encoding/json"
	"fmt"

	"github.com/himanstore/dmsales-backend/internal/types"
)

// sizeChartRow is one band of a product's size chart, stored as JSON on
// the product row.
type sizeChartRow struct {
	Size      string  `json:"size"`
	MinHeight float64 `json:"min_height"`
	MaxHeight float64 `json:"max_height"`
	MinWeight float64 `json:"min_weight"`
	MaxWeight float64 `json:"max_weight"`
}

// SuggestSize picks the first chart band covering the customer's height
// (cm) and weight (kg). Falls back to the nearest band by weight when no
// band covers both, and errors when the product has no chart.
func SuggestSize(product *types.Product, heightCm, weightKg float64) (string, error) {
	if product == nil || len(product.SizeChart) == 0 {
		return "", fmt.Errorf("product has no size chart")
	}
	if heightCm <= 0 || weightKg <= 0 {
		return "", fmt.Errorf("height and weight required")
	}

	var rows []sizeChartRow
	if err := json.Unmarshal(product.SizeChart, &rows); err != nil {
		return "", fmt.Errorf("parse size chart: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("product has no size chart")
	}

	for _, row := range rows {
		if heightCm >= row.MinHeight && heightCm <= row.MaxHeight &&
			weightKg >= row.MinWeight && weightKg <= row.MaxWeight {
			return row.Size, nil
		}
	}

	best := rows[0]
	bestDist := weightDistance(rows[0], weightKg)
	for _, row := range rows[1:] {
		if d := weightDistance(row, weightKg); d < bestDist {
			best = row
			bestDist = d
		}
	}
	return best.Size, nil
}

func weightDistance(row sizeChartRow, weightKg float64) float64 {
	switch {
	case weightKg < row.MinWeight:
		return row.MinWeight - weightKg
	case weightKg > row.MaxWeight:
		return weightKg - row.MaxWeight
	default:
		return 0
	}
}
