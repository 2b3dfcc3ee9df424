package detect

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Colour format regexes. Bare vectors are validated numerically after the
// shape match because `300,1,2` passes the digit pattern but is not a
// colour.
var (
	hexColorRe  = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3}|[A-Fa-f0-9]{4}|[A-Fa-f0-9]{8})$`)
	rgbFuncRe   = regexp.MustCompile(`^rgba?\(\s*\d+\s*,\s*\d+\s*,\s*\d+\s*(,\s*[\d.]+)?\s*\)$`)
	cmykFuncRe  = regexp.MustCompile(`^cmyk\(\s*\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}\s*\)$`)
	rgbVectorRe = regexp.MustCompile(`^\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}$`)
	cmykVecRe   = regexp.MustCompile(`^\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}$`)
)

// ColorTarget selects the output form of ConvertColor.
type ColorTarget int

const (
	// TargetRGBVector renders "R, G, B" (the dedup key form).
	TargetRGBVector ColorTarget = iota
	// TargetHex renders "#rrggbb".
	TargetHex
	// TargetCMYK renders "C, M, Y, K" in 0–100.
	TargetCMYK
)

// RGB is the intermediate representation every conversion path goes
// through.
type RGB struct {
	R, G, B uint8
}

// IsColor reports whether s is a recognised colour in any supported format:
// hex (#RGB, #RGBA, #RRGGBB, #RRGGBBAA), rgb()/rgba(), cmyk(), a bare
// R,G,B vector of u8, or a bare C,M,Y,K vector of 0–100.
func IsColor(s string) bool {
	_, ok := colorFormat(s)
	return ok
}

// colorFormat identifies the format of s: "hex", "rgb" or "cmyk".
func colorFormat(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)

	switch {
	case hexColorRe.MatchString(trimmed):
		return "hex", true
	case rgbFuncRe.MatchString(trimmed):
		return "rgb", true
	case cmykFuncRe.MatchString(trimmed):
		return "cmyk", true
	}

	if rgbVectorRe.MatchString(trimmed) {
		if _, ok := parseVector(trimmed, 3, 255); ok {
			return "rgb", true
		}
	}

	if cmykVecRe.MatchString(trimmed) {
		if _, ok := parseVector(trimmed, 4, 100); ok {
			return "cmyk", true
		}
	}

	return "", false
}

// parseVector splits a comma-separated list of n integers, each within
// [0, max]. Returns false on any parse or range failure.
func parseVector(s string, n, max int) ([]int, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, false
	}

	out := make([]int, 0, n)
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > max {
			return nil, false
		}

		out = append(out, v)
	}

	return out, true
}

// parseHex decodes #RGB and #RRGGBB (alpha variants are accepted by the
// detector but the alpha channel is discarded here).
func parseHex(s string) (RGB, bool) {
	clean := strings.TrimPrefix(strings.TrimSpace(s), "#")

	switch len(clean) {
	case 4:
		clean = clean[:3]
	case 8:
		clean = clean[:6]
	}

	if len(clean) == 3 {
		var b strings.Builder
		for _, c := range clean {
			b.WriteRune(c)
			b.WriteRune(c)
		}
		clean = b.String()
	}

	if len(clean) != 6 {
		return RGB{}, false
	}

	v, err := strconv.ParseUint(clean, 16, 32)
	if err != nil {
		return RGB{}, false
	}

	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, true
}

// parseRGBFunc decodes rgb(r, g, b) and rgba(r, g, b, a) as well as bare
// R,G,B vectors.
func parseRGBFunc(s string) (RGB, bool) {
	content := strings.TrimSpace(s)
	content = strings.TrimPrefix(content, "rgba")
	content = strings.TrimPrefix(content, "rgb")
	content = strings.Trim(content, "()")

	parts := strings.Split(content, ",")
	if len(parts) < 3 {
		return RGB{}, false
	}

	vals, ok := parseVector(strings.Join(parts[:3], ","), 3, 255)
	if !ok {
		return RGB{}, false
	}

	return RGB{R: uint8(vals[0]), G: uint8(vals[1]), B: uint8(vals[2])}, true
}

// parseCMYK decodes cmyk(c, m, y, k) and bare C,M,Y,K vectors into RGB.
func parseCMYK(s string) (RGB, bool) {
	content := strings.TrimSpace(s)
	content = strings.TrimPrefix(content, "cmyk")
	content = strings.Trim(content, "()")

	vals, ok := parseVector(content, 4, 100)
	if !ok {
		return RGB{}, false
	}

	return cmykToRGB(vals[0], vals[1], vals[2], vals[3]), true
}

// cmykToRGB applies the standard linear relations with rounding.
func cmykToRGB(c, m, y, k int) RGB {
	cd := float64(c) / 100
	md := float64(m) / 100
	yd := float64(y) / 100
	kd := float64(k) / 100

	r := math.Round(255 * (1 - cd) * (1 - kd))
	g := math.Round(255 * (1 - md) * (1 - kd))
	b := math.Round(255 * (1 - yd) * (1 - kd))

	return RGB{R: uint8(r), G: uint8(g), B: uint8(b)}
}

// rgbToCMYK inverts cmykToRGB. Pure black maps to (0, 0, 0, 100).
func rgbToCMYK(c RGB) (int, int, int, int) {
	rd := float64(c.R) / 255
	gd := float64(c.G) / 255
	bd := float64(c.B) / 255

	k := 1 - math.Max(rd, math.Max(gd, bd))
	if k == 1 {
		return 0, 0, 0, 100
	}

	cc := math.Round((1 - rd - k) / (1 - k) * 100)
	mm := math.Round((1 - gd - k) / (1 - k) * 100)
	yy := math.Round((1 - bd - k) / (1 - k) * 100)

	return int(cc), int(mm), int(yy), int(math.Round(k * 100))
}

// ParseColor decodes any supported colour format into RGB.
func ParseColor(s string) (RGB, bool) {
	format, ok := colorFormat(s)
	if !ok {
		return RGB{}, false
	}

	switch format {
	case "hex":
		return parseHex(s)
	case "rgb":
		return parseRGBFunc(s)
	case "cmyk":
		return parseCMYK(s)
	}

	return RGB{}, false
}

// ConvertColor converts a colour string between formats. All paths go
// through the RGB intermediate.
func ConvertColor(s string, target ColorTarget) (string, bool) {
	rgb, ok := ParseColor(s)
	if !ok {
		return "", false
	}

	switch target {
	case TargetHex:
		return fmt.Sprintf("#%02x%02x%02x", rgb.R, rgb.G, rgb.B), true
	case TargetCMYK:
		c, m, y, k := rgbToCMYK(rgb)
		return fmt.Sprintf("%d, %d, %d, %d", c, m, y, k), true
	default:
		return fmt.Sprintf("%d, %d, %d", rgb.R, rgb.G, rgb.B), true
	}
}

// NormalizeColor returns the canonical "R, G, B" dedup key for s.
func NormalizeColor(s string) (string, bool) {
	return ConvertColor(s, TargetRGBVector)
}

// colorSimilarityThreshold is the Euclidean distance in RGB space under
// which two colours are treated as the same entry.
const colorSimilarityThreshold = 10.0

// ColorDistance returns the Euclidean distance between two normalised
// "R, G, B" strings. Returns false when either string fails to parse.
func ColorDistance(a, b string) (float64, bool) {
	ca, okA := parseRGBFunc(a)
	cb, okB := parseRGBFunc(b)

	if !okA || !okB {
		return 0, false
	}

	dr := float64(ca.R) - float64(cb.R)
	dg := float64(ca.G) - float64(cb.G)
	db := float64(ca.B) - float64(cb.B)

	return math.Sqrt(dr*dr + dg*dg + db*db), true
}

// SimilarColor reports whether the two normalised colour strings are within
// the dedup tolerance.
func SimilarColor(a, b string) bool {
	d, ok := ColorDistance(a, b)
	return ok && d <= colorSimilarityThreshold
}
