package indices

import (
	"math"
	"testing"

	"github.com/rkm/fieldsat/internal/models"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNDVIFixtures(t *testing.T) {
	tests := []struct {
		name string
		red  float64
		nir  float64
		want float64
	}{
		{"vegetation", 0.15, 0.45, 0.5},
		{"water", 0.30, 0.10, -0.5},
		{"sparse", 0.25, 0.20, -0.111},
		{"zero denominator", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NDVI(models.SpectralBands{Red: tt.red, NIR: tt.nir})
			if !approx(got, tt.want, 1e-3) {
				t.Errorf("NDVI(red=%v, nir=%v) = %v, want %v", tt.red, tt.nir, got, tt.want)
			}
		})
	}
}

func TestNDVIRange(t *testing.T) {
	for red := 0.0; red <= 1.0; red += 0.05 {
		for nir := 0.0; nir <= 1.0; nir += 0.05 {
			v := NDVI(models.SpectralBands{Red: red, NIR: nir})
			if v < -1 || v > 1 || math.IsNaN(v) {
				t.Fatalf("NDVI(red=%v, nir=%v) = %v out of range", red, nir, v)
			}
		}
	}
}

func TestCalculateNeverReturnsNonFinite(t *testing.T) {
	inputs := []models.SpectralBands{
		{},
		{Red: math.NaN(), NIR: 0.4},
		{Red: 0.1, NIR: math.Inf(1)},
		{Red: 0.2, NIR: 0.2, Blue: 0.3 + 1.0/7.5, Green: -0.2, SWIR1: -0.2},
		{Red: -0.5, NIR: 0.5, Green: 0.5, SWIR1: -0.5},
	}

	for _, b := range inputs {
		idx := Calculate(b)
		for name, v := range map[string]float64{
			"ndvi": idx.NDVI, "savi": idx.SAVI, "evi": idx.EVI, "gndvi": idx.GNDVI,
			"ndwi": idx.NDWI, "ndmi": idx.NDMI, "lai": idx.LAI, "fvc": idx.FVC,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("%s = %v for bands %+v", name, v, b)
			}
		}
	}
}

func TestEVIZeroDenominator(t *testing.T) {
	// nir + 6*red - 7.5*blue + 1 == 0
	b := models.SpectralBands{Red: 0, NIR: 0.5, Blue: 0.2}
	if got := EVI(b); got != 0 {
		t.Errorf("EVI = %v, want 0", got)
	}
}

func TestCalculateKnownBands(t *testing.T) {
	b := models.SpectralBands{Red: 0.05, NIR: 0.45, Blue: 0.03, Green: 0.08, SWIR1: 0.2, SWIR2: 0.1}
	idx := Calculate(b)

	if !approx(idx.NDVI, 0.8, 1e-9) {
		t.Errorf("NDVI = %v, want 0.8", idx.NDVI)
	}
	if !approx(idx.SAVI, 0.4*1.5/1.0, 1e-9) {
		t.Errorf("SAVI = %v, want 0.6", idx.SAVI)
	}
	wantEVI := 2.5 * 0.4 / (0.45 + 0.3 - 0.225 + 1)
	if !approx(idx.EVI, wantEVI, 1e-9) {
		t.Errorf("EVI = %v, want %v", idx.EVI, wantEVI)
	}
	if !approx(idx.GNDVI, 0.37/0.53, 1e-9) {
		t.Errorf("GNDVI = %v, want %v", idx.GNDVI, 0.37/0.53)
	}
	if !approx(idx.NDWI, -0.37/0.53, 1e-9) {
		t.Errorf("NDWI = %v, want %v", idx.NDWI, -0.37/0.53)
	}
	if !approx(idx.NDMI, 0.25/0.65, 1e-9) {
		t.Errorf("NDMI = %v, want %v", idx.NDMI, 0.25/0.65)
	}
}

func TestLAIMonotonicAndNonNegative(t *testing.T) {
	prev := LAI(-1)
	if prev != 0 {
		t.Errorf("LAI(-1) = %v, want 0", prev)
	}
	for ndvi := -0.95; ndvi <= 1.0; ndvi += 0.05 {
		got := LAI(ndvi)
		if got < 0 {
			t.Fatalf("LAI(%v) = %v is negative", ndvi, got)
		}
		if got < prev {
			t.Fatalf("LAI(%v) = %v decreased from %v", ndvi, got, prev)
		}
		prev = got
	}
}

func TestFVCClamped(t *testing.T) {
	tests := []struct {
		ndvi float64
		want float64
	}{
		{-0.5, 0},
		{BareSoilNDVI, 0},
		{DenseCanopyNDVI, 1},
		{0.95, 1},
		{(BareSoilNDVI + DenseCanopyNDVI) / 2, 0.5},
	}
	for _, tt := range tests {
		if got := FVC(tt.ndvi); !approx(got, tt.want, 1e-9) {
			t.Errorf("FVC(%v) = %v, want %v", tt.ndvi, got, tt.want)
		}
	}
}
