package models

// SpectralBands holds surface reflectance fractions for a single sample.
type SpectralBands struct {
	Red   float64 `json:"red"`
	NIR   float64 `json:"nir"`
	Blue  float64 `json:"blue"`
	Green float64 `json:"green"`
	SWIR1 float64 `json:"swir1"`
	SWIR2 float64 `json:"swir2"`
}

// VegetationIndices are the indices derived from one set of SpectralBands.
type VegetationIndices struct {
	NDVI  float64 `json:"ndvi"`
	SAVI  float64 `json:"savi"`
	EVI   float64 `json:"evi"`
	GNDVI float64 `json:"gndvi"`
	NDWI  float64 `json:"ndwi"`
	NDMI  float64 `json:"ndmi"`
	LAI   float64 `json:"lai"`
	FVC   float64 `json:"fvc"`
}

// NDVIStatistics summarises a population of per-pixel NDVI values.
type NDVIStatistics struct {
	Mean           float64 `json:"mean"`
	Median         float64 `json:"median"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Std            float64 `json:"std"`
	Q25            float64 `json:"q25"`
	Q75            float64 `json:"q75"`
	ValidPixels    int     `json:"validPixels"`
	WaterPixels    int     `json:"waterPixels"`
	BaresoilPixels int     `json:"baresoilPixels"`
}
