package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Product is one of the fertilizer products the company sells.
type Product string

const (
	ProductMasterP       Product = "Master P"
	ProductOrganomineral Product = "Organomineral"
	ProductMineral       Product = "Mineral"
)

// DefaultProduct replaces any recommendation outside the known product set.
const DefaultProduct = ProductMineral

// CorrectionNotice prefixes the reasoning of a corrected recommendation.
const CorrectionNotice = "(O modelo recomendou um produto inválido, retornando ao padrão)"

// Products returns the known product set in display order.
func Products() []Product {
	return []Product{ProductMasterP, ProductOrganomineral, ProductMineral}
}

// ProductNames returns the product set as plain strings, for schemas and prompts.
func ProductNames() []string {
	names := make([]string, 0, 3)
	for _, p := range Products() {
		names = append(names, string(p))
	}
	return names
}

// Valid reports whether p belongs to the known product set.
func (p Product) Valid() bool {
	return slices.Contains(Products(), p)
}

// SoilData holds the measurements submitted with an analysis request.
type SoilData struct {
	Crop       string  `json:"crop"`
	SoilType   string  `json:"soilType"`
	PH         float64 `json:"ph"`
	Nitrogen   float64 `json:"nitrogen"`   // mg/dm³
	Phosphorus float64 `json:"phosphorus"` // mg/dm³
	Potassium  float64 `json:"potassium"`  // mg/dm³
	History    string  `json:"history"`
	Climate    string  `json:"climate"`
}

// DefaultSoilData returns the values the analysis form starts with.
func DefaultSoilData() SoilData {
	return SoilData{
		Crop:       "Soja",
		SoilType:   "Argiloso",
		PH:         6.5,
		Nitrogen:   20,
		Phosphorus: 15,
		Potassium:  30,
		History:    "Cultura anterior de milho, sistema de plantio direto.",
		Climate:    "Temperado, com chuvas médias.",
	}
}

// FieldError describes one invalid form field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the required fields and value ranges of the form.
func (d SoilData) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(d.Crop) == "" {
		errs = append(errs, FieldError{Field: "crop", Message: "informe a cultura"})
	}
	if strings.TrimSpace(d.SoilType) == "" {
		errs = append(errs, FieldError{Field: "soilType", Message: "informe o tipo de solo"})
	}
	if d.PH < 0 || d.PH > 14 {
		errs = append(errs, FieldError{Field: "ph", Message: "o pH deve estar entre 0 e 14"})
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"nitrogen", d.Nitrogen},
		{"phosphorus", d.Phosphorus},
		{"potassium", d.Potassium},
	} {
		if f.value < 0 {
			errs = append(errs, FieldError{Field: f.name, Message: "o valor não pode ser negativo"})
		}
	}
	return errs
}

// AnalysisResult is the recommendation returned by the inference service.
type AnalysisResult struct {
	ProductRecommendation Product `json:"productRecommendation"`
	Reasoning             string  `json:"reasoning"`
	Confidence            float64 `json:"confidence"` // 0..1

	// Corrected is set once Normalize replaced the product.
	Corrected bool `json:"-"`
}

// Normalize enforces the product invariant. A recommendation outside the
// product set is replaced by DefaultProduct and the reasoning is prefixed
// with CorrectionNotice. It reports whether a correction was made.
func (r *AnalysisResult) Normalize() bool {
	if r.ProductRecommendation.Valid() {
		return false
	}
	r.ProductRecommendation = DefaultProduct
	r.Reasoning = CorrectionNotice + " " + r.Reasoning
	r.Corrected = true
	return true
}

// SavedAnalysis is a completed analysis the user chose to keep.
type SavedAnalysis struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	SoilData     SoilData       `json:"soilData"`
	ImagePreview string         `json:"imagePreview"` // data URL of the submitted image
	Result       AnalysisResult `json:"result"`
}

// ReasoningSummary returns the reasoning cut to max runes for tabular views.
func (a SavedAnalysis) ReasoningSummary(max int) string {
	r := []rune(a.Result.Reasoning)
	if len(r) <= max {
		return a.Result.Reasoning
	}
	return string(r[:max]) + "..."
}

// NPK formats pH and macronutrients the way the company report shows them.
func (d SoilData) NPK() string {
	return fmt.Sprintf("%g / %g / %g / %g", d.PH, d.Nitrogen, d.Phosphorus, d.Potassium)
}
