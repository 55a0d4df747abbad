//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// FundusQualityGate отсеивает снимки, на которых сервис распознавания
// заведомо ошибётся: нет поля зрения, размытие, пересвет, блики.
// Доли считаются только внутри круга глазного дна, чёрная рамка не учитывается.
type FundusQualityGate struct {
	MinImageSide          int
	MinFieldRatio         float64
	MinSharpnessEdgeRatio float64
	MaxOverexposedRatio   float64
	MaxUnderexposedRatio  float64
	MaxGlareRatio         float64
}

// NewFundusQualityGate создаёт проверку с порогами для фундус-камер
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

// Enabled проверка реально выполняется только в сборке с OpenCV
func (g *FundusQualityGate) Enabled() bool { return true }

// Check прогоняет JPEG через проверки качества
func (g *FundusQualityGate) Check(ctx context.Context, jpegData []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mat, err := gocv.IMDecode(jpegData, gocv.IMReadColor)
	if err != nil || mat.Empty() {
		if err == nil {
			mat.Close()
		}
		return errors.New("failed to decode image")
	}
	defer mat.Close()

	if mat.Cols() < g.MinImageSide || mat.Rows() < g.MinImageSide {
		return fmt.Errorf("image is too small (%dx%d)", mat.Cols(), mat.Rows())
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	// поле зрения: всё, что светлее чёрной рамки камеры
	field := gocv.NewMat()
	defer field.Close()
	gocv.Threshold(gray, &field, 15, 255, gocv.ThresholdBinary)
	fieldPixels := gocv.CountNonZero(field)
	fieldRatio := float64(fieldPixels) / float64(mat.Cols()*mat.Rows())
	if fieldRatio < g.MinFieldRatio {
		return fmt.Errorf("fundus is not visible (field_ratio=%.4f)", fieldRatio)
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 30, 90)
	edgeRatio := ratioWithin(edges, field, fieldPixels)
	if edgeRatio < g.MinSharpnessEdgeRatio {
		return fmt.Errorf("image is blurry (edge_ratio=%.4f)", edgeRatio)
	}

	bright := gocv.NewMat()
	defer bright.Close()
	gocv.Threshold(gray, &bright, 250, 255, gocv.ThresholdBinary)
	if ratio := ratioWithin(bright, field, fieldPixels); ratio > g.MaxOverexposedRatio {
		return fmt.Errorf("overexposed image (ratio=%.4f)", ratio)
	}

	dark := gocv.NewMat()
	defer dark.Close()
	gocv.Threshold(gray, &dark, 40, 255, gocv.ThresholdBinaryInv)
	if ratio := ratioWithin(dark, field, fieldPixels); ratio > g.MaxUnderexposedRatio {
		return fmt.Errorf("underexposed image (ratio=%.4f)", ratio)
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(mat, &hsv, gocv.ColorBGRToHSV)
	channels := gocv.Split(hsv)
	for i := range channels {
		defer channels[i].Close()
	}
	if len(channels) < 3 {
		return errors.New("invalid hsv channels")
	}

	lowSat := gocv.NewMat()
	defer lowSat.Close()
	gocv.Threshold(channels[1], &lowSat, 40, 255, gocv.ThresholdBinaryInv)

	highVal := gocv.NewMat()
	defer highVal.Close()
	gocv.Threshold(channels[2], &highVal, 245, 255, gocv.ThresholdBinary)

	glare := gocv.NewMat()
	defer glare.Close()
	gocv.BitwiseAnd(lowSat, highVal, &glare)
	if ratio := ratioWithin(glare, field, fieldPixels); ratio > g.MaxGlareRatio {
		return fmt.Errorf("too much glare (ratio=%.4f)", ratio)
	}

	return nil
}

func ratioWithin(mask, field gocv.Mat, fieldPixels int) float64 {
	if fieldPixels <= 0 {
		return 0
	}
	inside := gocv.NewMat()
	defer inside.Close()
	gocv.BitwiseAnd(mask, field, &inside)
	return float64(gocv.CountNonZero(inside)) / float64(fieldPixels)
}
