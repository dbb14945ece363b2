// Package indices computes vegetation indices from surface reflectance.
//
// All functions are pure. Zero or non-finite denominators yield 0 and every
// result is finite.
package indices

import (
	"math"

	"github.com/rkm/fieldsat/internal/models"
)

const (
	// SoilBrightness is the SAVI soil adjustment factor L.
	SoilBrightness = 0.5

	// BareSoilNDVI and DenseCanopyNDVI bound the FVC scaling.
	BareSoilNDVI    = 0.05
	DenseCanopyNDVI = 0.86

	// LAI = laiScale*exp(laiExponent*NDVI), shifted so that NDVI -1 maps to 0.
	laiScale    = 0.57
	laiExponent = 2.33
)

// Calculate derives every index from one set of bands.
func Calculate(b models.SpectralBands) models.VegetationIndices {
	ndvi := NDVI(b)
	return models.VegetationIndices{
		NDVI:  ndvi,
		SAVI:  SAVI(b),
		EVI:   EVI(b),
		GNDVI: GNDVI(b),
		NDWI:  NDWI(b),
		NDMI:  NDMI(b),
		LAI:   LAI(ndvi),
		FVC:   FVC(ndvi),
	}
}

// NDVI is (nir - red) / (nir + red).
func NDVI(b models.SpectralBands) float64 {
	return normalizedDifference(b.NIR, b.Red)
}

// SAVI is ((nir - red) / (nir + red + L)) * (1 + L).
func SAVI(b models.SpectralBands) float64 {
	return clampIndex(ratio((b.NIR-b.Red)*(1+SoilBrightness), b.NIR+b.Red+SoilBrightness))
}

// EVI is 2.5 * (nir - red) / (nir + 6*red - 7.5*blue + 1).
func EVI(b models.SpectralBands) float64 {
	return clampIndex(ratio(2.5*(b.NIR-b.Red), b.NIR+6*b.Red-7.5*b.Blue+1))
}

// GNDVI is (nir - green) / (nir + green).
func GNDVI(b models.SpectralBands) float64 {
	return normalizedDifference(b.NIR, b.Green)
}

// NDWI is the green/NIR water index (green - nir) / (green + nir).
func NDWI(b models.SpectralBands) float64 {
	return normalizedDifference(b.Green, b.NIR)
}

// NDMI is (nir - swir1) / (nir + swir1).
func NDMI(b models.SpectralBands) float64 {
	return normalizedDifference(b.NIR, b.SWIR1)
}

// LAI estimates leaf area index from NDVI. It increases with NDVI and is
// never negative.
func LAI(ndvi float64) float64 {
	if !finite(ndvi) {
		return 0
	}
	ndvi = clampIndex(ndvi)
	lai := laiScale*math.Exp(laiExponent*ndvi) - laiScale*math.Exp(-laiExponent)
	return math.Max(0, lai)
}

// FVC scales NDVI linearly between bare soil and dense canopy, clamped to [0,1].
func FVC(ndvi float64) float64 {
	if !finite(ndvi) {
		return 0
	}
	fvc := (ndvi - BareSoilNDVI) / (DenseCanopyNDVI - BareSoilNDVI)
	return math.Min(1, math.Max(0, fvc))
}

func normalizedDifference(a, b float64) float64 {
	return clampIndex(ratio(a-b, a+b))
}

func ratio(num, den float64) float64 {
	if den == 0 || !finite(num) || !finite(den) {
		return 0
	}
	r := num / den
	if !finite(r) {
		return 0
	}
	return r
}

func clampIndex(v float64) float64 {
	return math.Min(1, math.Max(-1, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
