package detection

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes a list of parts.
type Metrics struct {
	TotalCoverage     float64        `json:"totalCoverage"`
	AverageConfidence float64        `json:"averageConfidence"`
	PartsByType       map[string]int `json:"partsByType"`
	TotalParts        int            `json:"totalParts"`
}

// Coverage returns sum(area)/imageArea*100 rounded to 2 decimals. Overlaps
// are not removed, so the result can exceed 100. A non-positive imageArea
// yields 0.
func Coverage(parts []DetectedPart, imageArea float64) float64 {
	if imageArea <= 0 || len(parts) == 0 {
		return 0
	}
	areas := make([]float64, len(parts))
	for i, p := range parts {
		areas[i] = p.Area
	}
	return round2(floats.Sum(areas) / imageArea * 100)
}

// CalculateMetrics computes coverage, mean confidence and per-name counts.
// The mean confidence of an empty list is 0.
func CalculateMetrics(parts []DetectedPart, imageArea float64) Metrics {
	m := Metrics{
		TotalCoverage: Coverage(parts, imageArea),
		PartsByType:   make(map[string]int),
		TotalParts:    len(parts),
	}
	if len(parts) == 0 {
		return m
	}

	confidences := make([]float64, len(parts))
	for i, p := range parts {
		confidences[i] = p.Confidence
		m.PartsByType[p.Name]++
	}
	m.AverageConfidence = round2(stat.Mean(confidences, nil))
	return m
}
