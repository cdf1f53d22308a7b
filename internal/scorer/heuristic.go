// Package scorer estimates how bot-like a channel avatar looks from
// raw image features. The heuristic scorer runs locally; the remote
// scorer defers to an inference service.
package scorer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

// analysisSize is the edge length avatars are normalized to before
// feature extraction. Feature values depend on it, so it is fixed.
const analysisSize = 64

// Heuristic scores avatars from local pixel statistics. Bot farms tend
// to leave the default gray silhouette, reuse flat single-color tiles,
// or hotlink identical low-entropy art; those shapes separate well on
// simple global features.
type Heuristic struct{}

// NewHeuristic returns the local scorer.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// Score decodes, normalizes and featurizes the avatar.
func (h *Heuristic) Score(ctx context.Context, data []byte) (engine.AvatarMetrics, error) {
	if err := ctx.Err(); err != nil {
		return engine.AvatarMetrics{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return engine.AvatarMetrics{}, fmt.Errorf("decode avatar: %w", err)
	}

	small := image.NewRGBA(image.Rect(0, 0, analysisSize, analysisSize))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	f := extractFeatures(small)
	return engine.AvatarMetrics{
		BotProbability: probability(f),
		Features:       f,
	}, nil
}

// extractFeatures computes global color statistics on the normalized
// image. All values land in [0,1] except color_entropy (bits).
func extractFeatures(img *image.RGBA) map[string]float64 {
	const n = analysisSize * analysisSize

	var (
		whiteCount   int
		skinCount    int
		sumBright    float64
		sumSat       float64
		sumSatSq     float64
		edgeCount    int
		symmetricPix int
		colorHist    = make(map[uint32]int)
	)

	at := func(x, y int) (r, g, b float64) {
		i := img.PixOffset(x, y)
		return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
	}

	for y := 0; y < analysisSize; y++ {
		for x := 0; x < analysisSize; x++ {
			r, g, b := at(x, y)

			maxC := math.Max(r, math.Max(g, b))
			minC := math.Min(r, math.Min(g, b))
			bright := maxC / 255
			sat := 0.0
			if maxC > 0 {
				sat = (maxC - minC) / maxC
			}
			sumBright += bright
			sumSat += sat
			sumSatSq += sat * sat

			if r > 235 && g > 235 && b > 235 {
				whiteCount++
			}
			// Coarse RGB skin gate; good enough to flag human portraits.
			if r > 95 && g > 40 && b > 20 && r > g && r > b && math.Abs(r-g) > 15 {
				skinCount++
			}

			// 4-bit per-channel quantization for the dominant-color histogram.
			key := (uint32(r)>>4)<<8 | (uint32(g)>>4)<<4 | uint32(b)>>4
			colorHist[key]++

			if x+1 < analysisSize {
				r2, g2, b2 := at(x+1, y)
				if math.Abs(r-r2)+math.Abs(g-g2)+math.Abs(b-b2) > 90 {
					edgeCount++
				}
			}
			if x < analysisSize/2 {
				rm, gm, bm := at(analysisSize-1-x, y)
				if math.Abs(r-rm)+math.Abs(g-gm)+math.Abs(b-bm) < 45 {
					symmetricPix++
				}
			}
		}
	}

	dominant := 0
	entropy := 0.0
	for _, count := range colorHist {
		if count > dominant {
			dominant = count
		}
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}

	satMean := sumSat / n
	satVar := sumSatSq/n - satMean*satMean
	if satVar < 0 {
		satVar = 0
	}

	return map[string]float64{
		"white_fraction":          float64(whiteCount) / n,
		"dominant_color_fraction": float64(dominant) / n,
		"color_entropy":           entropy,
		"saturation_mean":         satMean,
		"saturation_std":          math.Sqrt(satVar),
		"brightness_mean":         sumBright / n,
		"edge_density":            float64(edgeCount) / n,
		"symmetry":                float64(symmetricPix) / (n / 2),
		"skin_fraction":           float64(skinCount) / n,
	}
}

// probability folds the features through a hand-tuned logistic model.
// Flat, low-entropy, highly symmetric images push the score up; skin
// tones and busy detail push it down.
func probability(f map[string]float64) float64 {
	z := -1.2 +
		2.4*f["dominant_color_fraction"] +
		1.1*f["white_fraction"] +
		0.9*f["symmetry"] -
		0.35*f["color_entropy"] -
		1.6*f["skin_fraction"] -
		1.3*f["edge_density"] -
		0.8*f["saturation_std"]
	return 1 / (1 + math.Exp(-z))
}
