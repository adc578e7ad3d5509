package game

import (
	"math"
	"math/rand"
)

// pathPoint is one sample of a pointer trajectory; t is elapsed milliseconds
// from movement start.
type pathPoint struct {
	x, y float64
	t    float64
}

// driftConfig tunes the trajectory generator. Movement time follows Fitts'
// Law; the stroke itself is a lognormal velocity primitive with a single
// corrective sub-movement, a lateral arc and low-amplitude tremor.
type driftConfig struct {
	fittsA      float64 // intercept (ms)
	fittsB      float64 // slope (ms/bit)
	targetWidth float64 // effective target radius (px)

	undershootMin float64
	undershootMax float64
	peakTimeRatio float64
	strokeSigma   float64

	curvatureScale float64

	tremorFreq float64 // Hz
	tremorAmp  float64 // px

	sampleDtMean float64 // mean inter-sample interval (ms)
	gammaShape   float64
}

var defaultDriftConfig = driftConfig{
	fittsA:      25.0,
	fittsB:      40.0,
	targetWidth: 18.0,

	undershootMin: 0.93,
	undershootMax: 0.98,
	peakTimeRatio: 0.35,
	strokeSigma:   0.22,

	curvatureScale: 0.02,

	tremorFreq: 10.0,
	tremorAmp:  0.4,

	sampleDtMean: 8.0,
	gammaShape:   3.5,
}

func driftNormalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

func driftLognormalCDF(t, t0, mu, sigma float64) float64 {
	if t <= t0 {
		return 0.0
	}
	return driftNormalCDF((math.Log(t-t0) - mu) / sigma)
}

// driftArc is s²(1−s)³ normalised so its peak equals 1; lateral displacement
// is largest during the acceleration phase.
func driftArc(s float64) float64 {
	if s <= 0.0 || s >= 1.0 {
		return 0.0
	}
	const norm = 0.4 * 0.4 * 0.6 * 0.6 * 0.6
	return s * s * (1.0 - s) * (1.0 - s) * (1.0 - s) / norm
}

// driftGamma samples Gamma(shape, scale) with Marsaglia-Tsang's squeeze
// method.
func driftGamma(shape, scale float64) float64 {
	if shape < 1.0 {
		return driftGamma(shape+1, scale) * math.Pow(rand.Float64(), 1.0/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := rand.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rand.Float64()
		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

func driftUniform(lo, hi float64) float64 {
	return rand.Float64()*(hi-lo) + lo
}

// driftPath generates a pointer trajectory from (x0,y0) to (x1,y1) in the
// same coordinate space. Sample timestamps are gamma-distributed so playback
// does not tick at a constant interval.
func driftPath(x0, y0, x1, y1 float64, cfg driftConfig) []pathPoint {
	dx := x1 - x0
	dy := y1 - y0
	distance := math.Hypot(dx, dy)
	if distance < 1.0 {
		return []pathPoint{{x0, y0, 0.0}, {x1, y1, 40.0}}
	}

	tx, ty := dx/distance, dy/distance
	nx, ny := -ty, tx

	// Movement time from Fitts' Law with lognormal variability.
	id := math.Log2(distance/cfg.targetWidth + 1.0)
	mt := (cfg.fittsA + cfg.fittsB*id) * math.Exp(rand.NormFloat64()*0.08)
	if mt < 25.0 {
		mt = 25.0
	}

	// Primary stroke undershoots; a corrective sub-movement covers the rest.
	reach := driftUniform(cfg.undershootMin, cfg.undershootMax)
	primaryD := distance * reach
	peakT := mt * driftUniform(cfg.peakTimeRatio-0.03, cfg.peakTimeRatio+0.03)
	primaryMu := math.Log(peakT) + cfg.strokeSigma*cfg.strokeSigma

	residual := distance - primaryD
	corrSigma := driftUniform(0.12, 0.18)
	corrPeak := mt * driftUniform(0.12, 0.18)
	corrT0 := mt * driftUniform(0.55, 0.68)
	corrMu := math.Log(corrPeak) + corrSigma*corrSigma

	// Lateral arc amplitude, scaled by angle: vertical moves curve more than
	// horizontal ones (wrist geometry).
	angleFactor := 0.5 + 0.8*math.Abs(ny) - 0.15*math.Abs(nx)
	curvAmp := distance * cfg.curvatureScale * angleFactor * rand.NormFloat64()

	tremorPhase := driftUniform(0.0, 2.0*math.Pi)

	// Gamma-distributed sample times out to just past the movement time.
	totalT := mt * 1.15
	gScale := cfg.sampleDtMean / cfg.gammaShape
	times := []float64{0.0}
	for t := 0.0; t < totalT; {
		dt := driftGamma(cfg.gammaShape, gScale)
		if dt < 2.0 {
			dt = 2.0
		} else if dt > 25.0 {
			dt = 25.0
		}
		t += dt
		times = append(times, t)
	}

	path := make([]pathPoint, 0, len(times))
	for _, t := range times {
		s := driftLognormalCDF(t, 0.0, primaryMu, cfg.strokeSigma)
		cs := driftLognormalCDF(t, corrT0, corrMu, corrSigma)

		px := x0 + tx*(primaryD*s+residual*cs) + nx*curvAmp*driftArc(s)
		py := y0 + ty*(primaryD*s+residual*cs) + ny*curvAmp*driftArc(s)

		trem := cfg.tremorAmp * math.Sin(2.0*math.Pi*cfg.tremorFreq*t/1000.0+tremorPhase)
		path = append(path, pathPoint{x: px + trem*nx, y: py + trem*ny, t: t})
	}
	return path
}
