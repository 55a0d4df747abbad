package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Файл DICOM: 128 байт преамбулы и сигнатура DICM.
func isDICOM(data []byte) bool {
	return len(data) >= 132 && string(data[128:132]) == "DICM"
}

// decodeDICOM извлекает первый кадр офтальмологического снимка (OP).
// checkSize получает Columns и Rows до сборки кадра.
func decodeDICOM(data []byte, checkSize func(w, h int) error) (image.Image, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("parse dicom: %w", err)
	}

	w, err := dicomInt(ds, tag.Columns)
	if err != nil {
		return nil, err
	}
	h, err := dicomInt(ds, tag.Rows)
	if err != nil {
		return nil, err
	}
	if err := checkSize(w, h); err != nil {
		return nil, err
	}

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("dicom pixel data: %w", err)
	}

	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 || info.Frames[0] == nil {
		return nil, errors.New("dicom has no frames")
	}

	img, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, fmt.Errorf("dicom frame: %w", err)
	}
	return img, nil
}

func dicomInt(ds dicom.Dataset, t tag.Tag) (int, error) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("dicom %s: %w", t, err)
	}
	v, ok := el.Value.GetValue().([]int)
	if !ok || len(v) == 0 {
		return 0, fmt.Errorf("dicom %s: not an integer", t)
	}
	return v[0], nil
}
