package services

import (
	"testing"

	"gorm.io/datatypes"

	"github.com/himanstore/dmsales-backend/internal/types"
)

func chartedProduct(t *testing.T) *types.Product {
	t.Helper()
	chart := `[
		{"size":"S","min_height":150,"max_height":165,"min_weight":45,"max_weight":58},
		{"size":"M","min_height":160,"max_height":175,"min_weight":55,"max_weight":70},
		{"size":"L","min_height":170,"max_height":185,"min_weight":68,"max_weight":85}
	]`
	return &types.Product{Name: "Kimono", Slug: "kimono", SizeChart: datatypes.JSON(chart)}
}

func TestSuggestSize(t *testing.T) {
	product := chartedProduct(t)

	tests := []struct {
		name     string
		heightCm float64
		weightKg float64
		want     string
		wantErr  bool
	}{
		{name: "covered by one band", heightCm: 155, weightKg: 50, want: "S"},
		{name: "overlap picks first band", heightCm: 163, weightKg: 56, want: "S"},
		{name: "middle band", heightCm: 172, weightKg: 65, want: "M"},
		{name: "no band covers, nearest by weight above", heightCm: 190, weightKg: 95, want: "L"},
		{name: "no band covers, nearest by weight below", heightCm: 190, weightKg: 46, want: "S"},
		{name: "zero height rejected", heightCm: 0, weightKg: 60, wantErr: true},
		{name: "zero weight rejected", heightCm: 170, weightKg: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SuggestSize(product, tc.heightCm, tc.weightKg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got size %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("size: want=%s got=%s", tc.want, got)
			}
		})
	}
}

func TestSuggestSizeNoChart(t *testing.T) {
	if _, err := SuggestSize(nil, 170, 65); err == nil {
		t.Fatalf("nil product must error")
	}
	bare := &types.Product{Name: "Şal", Slug: "sal"}
	if _, err := SuggestSize(bare, 170, 65); err == nil {
		t.Fatalf("chartless product must error")
	}
	empty := &types.Product{Name: "Şal", Slug: "sal", SizeChart: datatypes.JSON(`[]`)}
	if _, err := SuggestSize(empty, 170, 65); err == nil {
		t.Fatalf("empty chart must error")
	}
}
