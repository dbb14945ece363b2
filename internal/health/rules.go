package health

// Thresholds for auxiliary stress factors.
const (
	LowVigorNDVI       = 0.3
	WaterStressNDWI    = 0.0
	MoistureStressNDMI = 0.1
	LowDensityEVI      = 0.2
	HighVariabilityStd = 0.15
	FloodedShare       = 0.2
	LowConfidence      = 0.5
)

const (
	adviceIrrigation    = "Review irrigation schedule and soil moisture levels"
	adviceScout         = "Scout the field to confirm crop establishment and check for pests or disease"
	adviceNutrients     = "Consider a soil test and targeted nutrient application"
	adviceZones         = "Investigate within-field variability and consider zone-based management"
	adviceDrainage      = "Check field drainage for standing water"
	adviceStressed      = "Prioritize this field for a ground inspection"
	adviceLowConfidence = "Confirm with a clearer acquisition before acting on this assessment"
)

type factorRule struct {
	factor    string
	advice    string
	triggered func(in Input, basis float64) bool
}

// factorRules are evaluated in order; that order is the order of the
// reported stress factors.
var factorRules = []factorRule{
	{
		factor: "low vegetation vigor",
		advice: adviceScout,
		triggered: func(_ Input, basis float64) bool {
			return basis < LowVigorNDVI
		},
	},
	{
		factor: "water stress",
		advice: adviceIrrigation,
		triggered: func(in Input, _ float64) bool {
			return in.NDWI != nil && *in.NDWI < WaterStressNDWI
		},
	},
	{
		factor: "moisture stress",
		advice: adviceIrrigation,
		triggered: func(in Input, _ float64) bool {
			return in.NDMI != nil && *in.NDMI < MoistureStressNDMI
		},
	},
	{
		factor: "low canopy density",
		advice: adviceNutrients,
		triggered: func(in Input, _ float64) bool {
			return in.EVI != nil && *in.EVI < LowDensityEVI
		},
	},
	{
		factor: "high within-field variability",
		advice: adviceZones,
		triggered: func(in Input, _ float64) bool {
			return in.Statistics != nil && in.Statistics.Std > HighVariabilityStd
		},
	},
	{
		factor: "standing water or flooding",
		advice: adviceDrainage,
		triggered: func(in Input, _ float64) bool {
			s := in.Statistics
			if s == nil || s.ValidPixels == 0 {
				return false
			}
			return float64(s.WaterPixels)/float64(s.ValidPixels) > FloodedShare
		},
	},
}

type adviceList struct {
	seen  map[string]bool
	items []string
}

func newAdviceList() *adviceList {
	return &adviceList{seen: make(map[string]bool), items: make([]string, 0)}
}

func (a *adviceList) add(s string) {
	if s == "" || a.seen[s] {
		return
	}
	a.seen[s] = true
	a.items = append(a.items, s)
}
