// Package vision подготовка снимков глазного дна перед распознаванием.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"retina-bot/internal/domain/entity"
)

// QualityGate проверка качества уже нормализованного JPEG
type QualityGate interface {
	Check(ctx context.Context, jpegData []byte) error
}

type IntakeConfig struct {
	MaxBytes    int // 0 значит без ограничения
	MaxPixels   int // предел ширина*высота до декодирования, 0 без ограничения
	MinSide     int
	MaxSide     int // крупные снимки уменьшаются до этой стороны
	JPEGQuality int
}

// Intake реализует port.ImageIntake: проверяет загруженный файл,
// приводит любой поддерживаемый формат к JPEG и прогоняет через QualityGate.
type Intake struct {
	cfg  IntakeConfig
	gate QualityGate
	log  *zap.Logger
}

// NewIntake создаёт приёмку снимков. gate может быть nil.
func NewIntake(cfg IntakeConfig, gate QualityGate, logger *zap.Logger) *Intake {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 92
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Intake{cfg: cfg, gate: gate, log: logger}
}

// Normalize проверяет снимок и возвращает его JPEG-версию
func (in *Intake) Normalize(ctx context.Context, data []byte, filename string) (*entity.IntakeImage, error) {
	if len(data) == 0 {
		return nil, entity.ErrEmptyImage
	}
	if in.cfg.MaxBytes > 0 && len(data) > in.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", entity.ErrImageTooLarge, len(data), in.cfg.MaxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := in.decode(data)
	if err != nil {
		if errors.Is(err, entity.ErrImageTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidImage, err)
	}

	b := img.Bounds()
	if b.Dx() < in.cfg.MinSide || b.Dy() < in.cfg.MinSide {
		return nil, fmt.Errorf("%w: image is too small (%dx%d)", entity.ErrPoorQuality, b.Dx(), b.Dy())
	}

	// прозрачные участки PNG становятся белыми, как у сервиса распознавания
	flat := flatten(img)
	flat = downscale(flat, in.cfg.MaxSide)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: in.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	if in.gate != nil {
		if err := in.gate.Check(ctx, buf.Bytes()); err != nil {
			in.log.Info("Intake.Normalize quality gate rejected image", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", entity.ErrPoorQuality, err)
		}
	}

	out := &entity.IntakeImage{
		Data:     buf.Bytes(),
		Filename: jpegName(filename),
		Format:   format,
		Width:    flat.Bounds().Dx(),
		Height:   flat.Bounds().Dy(),
	}
	in.log.Debug("Intake.Normalize succeeded",
		zap.String("format", format),
		zap.Int("width", out.Width),
		zap.Int("height", out.Height),
		zap.Int("bytes", len(out.Data)),
	)
	return out, nil
}

// decode сверяет размеры из заголовка с MaxPixels и только потом декодирует
func (in *Intake) decode(data []byte) (image.Image, string, error) {
	if isDICOM(data) {
		img, err := decodeDICOM(data, in.checkPixels)
		return img, "dicom", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if err := in.checkPixels(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}
	return image.Decode(bytes.NewReader(data))
}

func (in *Intake) checkPixels(w, h int) error {
	if in.cfg.MaxPixels > 0 && int64(w)*int64(h) > int64(in.cfg.MaxPixels) {
		return fmt.Errorf("%w: %dx%d pixels, limit %d", entity.ErrImageTooLarge, w, h, in.cfg.MaxPixels)
	}
	return nil
}

func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Over)
	return dst
}

func downscale(img *image.RGBA, maxSide int) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}
	scale := float64(maxSide) / float64(max(w, h))
	dst := image.NewRGBA(image.Rect(0, 0, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func jpegName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "fundus"
	}
	return base + ".jpg"
}
