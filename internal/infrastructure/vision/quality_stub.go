//go:build !gocv
// +build !gocv

package vision

import "context"

type FundusQualityGate struct {
	MinImageSide          int
	MinFieldRatio         float64
	MinSharpnessEdgeRatio float64
	MaxOverexposedRatio   float64
	MaxUnderexposedRatio  float64
	MaxGlareRatio         float64
}

// NewFundusQualityGate создаёт проверку-заглушку (без OpenCV).
func NewFundusQualityGate(minSide int) *FundusQualityGate {
	return &FundusQualityGate{
		MinImageSide:          minSide,
		MinFieldRatio:         0.2,
		MinSharpnessEdgeRatio: 0.004,
		MaxOverexposedRatio:   0.25,
		MaxUnderexposedRatio:  0.5,
		MaxGlareRatio:         0.06,
	}
}

func (g *FundusQualityGate) Enabled() bool { return false }

// Check без тега gocv пропускает любой снимок.
func (g *FundusQualityGate) Check(ctx context.Context, jpegData []byte) error {
	_ = jpegData
	return ctx.Err()
}
