package statistics

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/rkm/fieldsat/internal/config"
)

var evalscriptTemplate = template.Must(template.New("evalscript").Parse(`//VERSION=3
function setup() {
  return {
    input: [{ bands: [{{.Inputs}}] }],
    output: [
      { id: "bands", bands: {{.Count}}, sampleType: "FLOAT32" },
      { id: "ndvi", bands: 1, sampleType: "FLOAT32" },
      { id: "dataMask", bands: 1 }
    ]
  };
}

function evaluatePixel(s) {
  let ndvi = (s.{{.NIR}} - s.{{.Red}}) / (s.{{.NIR}} + s.{{.Red}});
  return {
    bands: [{{.Scaled}}],
    ndvi: [ndvi],
    dataMask: [s.dataMask]
  };
}
`))

// Evalscript renders the script that outputs scaled reflectance for every
// mapped band, per-pixel NDVI and the data mask.
func Evalscript(bands config.BandMapping) (string, error) {
	names := bands.Names()
	if len(names) < 4 || bands.Scale <= 0 {
		return "", fmt.Errorf("invalid band mapping")
	}

	inputs := make([]string, 0, len(names)+1)
	scaled := make([]string, 0, len(names))
	for _, n := range names {
		inputs = append(inputs, fmt.Sprintf("%q", n))
		if bands.Scale == 1 {
			scaled = append(scaled, "s."+n)
		} else {
			scaled = append(scaled, fmt.Sprintf("s.%s / %g", n, bands.Scale))
		}
	}
	inputs = append(inputs, `"dataMask"`)

	var b strings.Builder
	err := evalscriptTemplate.Execute(&b, map[string]any{
		"Inputs": strings.Join(inputs, ", "),
		"Count":  len(names),
		"NIR":    bands.NIR,
		"Red":    bands.Red,
		"Scaled": strings.Join(scaled, ", "),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render evalscript: %w", err)
	}
	return b.String(), nil
}
