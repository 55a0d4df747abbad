package vision

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"retina-bot/internal/domain/entity"
)

type recordingGate struct {
	got []byte
	err error
}

func (g *recordingGate) Check(ctx context.Context, jpegData []byte) error {
	g.got = jpegData
	return g.err
}

func fundusImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 180, G: uint8(40 + x%60), B: 20, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestIntake(gate QualityGate) *Intake {
	return NewIntake(IntakeConfig{MaxBytes: 4 << 20, MinSide: 64, MaxSide: 512}, gate, nil)
}

func TestIntake_NormalizesToJPEG(t *testing.T) {
	tests := []struct {
		name   string
		encode func(*bytes.Buffer, image.Image) error
		format string
	}{
		{"png", func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) }, "png"},
		{"jpeg", func(b *bytes.Buffer, m image.Image) error { return jpeg.Encode(b, m, nil) }, "jpeg"},
		{"tiff", func(b *bytes.Buffer, m image.Image) error { return tiff.Encode(b, m, nil) }, "tiff"},
		{"bmp", func(b *bytes.Buffer, m image.Image) error { return bmp.Encode(b, m) }, "bmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tt.encode(&buf, fundusImage(128, 96)))

			out, err := newTestIntake(nil).Normalize(context.Background(), buf.Bytes(), "eye."+tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.format, out.Format)
			require.Equal(t, "eye.jpg", out.Filename)
			require.Equal(t, 128, out.Width)
			require.Equal(t, 96, out.Height)

			_, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
			require.NoError(t, err)
			require.Equal(t, "jpeg", format)
		})
	}
}

func TestIntake_TransparentPNGBecomesWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 80, 80))

	out, err := newTestIntake(nil).Normalize(context.Background(), encodePNG(t, img), "alpha.png")
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(40, 40).RGBA()
	require.Greater(t, r>>8, uint32(245))
	require.Greater(t, g>>8, uint32(245))
	require.Greater(t, b>>8, uint32(245))
}

func TestIntake_DownscalesLargeImages(t *testing.T) {
	out, err := newTestIntake(nil).Normalize(context.Background(), encodePNG(t, fundusImage(1024, 768)), "big.png")
	require.NoError(t, err)
	require.Equal(t, 512, out.Width)
	require.Equal(t, 384, out.Height)
}

func TestIntake_Rejections(t *testing.T) {
	small := encodePNG(t, fundusImage(32, 32))

	dicomLike := make([]byte, 200)
	copy(dicomLike[128:], "DICM")

	tests := []struct {
		name string
		data []byte
		max  int
		want error
	}{
		{name: "empty", data: nil, want: entity.ErrEmptyImage},
		{name: "too large", data: make([]byte, 2048), max: 1024, want: entity.ErrImageTooLarge},
		{name: "not an image", data: []byte("definitely not a picture"), want: entity.ErrInvalidImage},
		{name: "broken dicom", data: dicomLike, want: entity.ErrInvalidImage},
		{name: "too small", data: small, want: entity.ErrPoorQuality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewIntake(IntakeConfig{MaxBytes: tt.max, MinSide: 64}, nil, nil)
			_, err := in.Normalize(context.Background(), tt.data, "x.png")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIntake_RejectsTooManyPixels(t *testing.T) {
	gate := &recordingGate{}
	in := NewIntake(IntakeConfig{MaxBytes: 4 << 20, MaxPixels: 1 << 20, MinSide: 64, MaxSide: 512}, gate, nil)

	// однотонный PNG сжимается в несколько килобайт при 3 мегапикселях
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 2000, 1500)))
	require.Less(t, len(data), 64<<10)

	_, err := in.Normalize(context.Background(), data, "huge.png")
	require.ErrorIs(t, err, entity.ErrImageTooLarge)
	require.Nil(t, gate.got)

	_, err = in.Normalize(context.Background(), encodePNG(t, fundusImage(1024, 1024)), "edge.png")
	require.NoError(t, err)
}

func TestIntake_PixelLimitCheckedBeforeDecoding(t *testing.T) {
	data := encodePNG(t, fundusImage(64, 64))

	// заголовок IHDR обещает 100000x100000, данные остаются от 64x64
	binary.BigEndian.PutUint32(data[16:20], 100000)
	binary.BigEndian.PutUint32(data[20:24], 100000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	in := NewIntake(IntakeConfig{MaxPixels: 50_000_000, MinSide: 64}, nil, nil)
	_, err := in.Normalize(context.Background(), data, "forged.png")
	require.ErrorIs(t, err, entity.ErrImageTooLarge)
}

func TestIntake_QualityGate(t *testing.T) {
	gate := &recordingGate{}
	out, err := newTestIntake(gate).Normalize(context.Background(), encodePNG(t, fundusImage(100, 100)), "ok.png")
	require.NoError(t, err)
	require.Equal(t, out.Data, gate.got)

	gate.err = errors.New("image is blurry (edge_ratio=0.0010)")
	_, err = newTestIntake(gate).Normalize(context.Background(), encodePNG(t, fundusImage(100, 100)), "blur.png")
	require.ErrorIs(t, err, entity.ErrPoorQuality)
	require.Contains(t, err.Error(), "blurry")
}

func TestIntake_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestIntake(nil).Normalize(ctx, encodePNG(t, fundusImage(100, 100)), "eye.png")
	require.ErrorIs(t, err, context.Canceled)
}

func TestJPEGName(t *testing.T) {
	require.Equal(t, "scan.jpg", jpegName("scan.PNG"))
	require.Equal(t, "fundus.jpg", jpegName(""))
	require.Equal(t, "left eye.jpg", jpegName("/tmp/left eye.tiff"))
}
