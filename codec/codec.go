package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
)

// Format 输出编码格式
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"

	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

var ErrFormatNoAlpha = errors.New("format does not support transparency")

// DecodeError 上传的字节不是可识别的位图，或者已损坏/被截断
type DecodeError struct {
	MIME string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.MIME == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image (%s): %v", e.MIME, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Sniff 根据内容探测 MIME 类型，不看文件名
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}

// Supported 是否是允许上传的类型（PNG / JPEG）
func Supported(mime string) bool {
	return mime == MIMEPNG || mime == MIMEJPEG
}

// DecodeConfig 只读文件头拿到宽高，不分配像素
func DecodeConfig(data []byte) (image.Config, error) {
	mime := Sniff(data)
	if !Supported(mime) {
		return image.Config{}, &DecodeError{MIME: mime, Err: image.ErrFormat}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, &DecodeError{MIME: mime, Err: err}
	}
	return cfg, nil
}

func Decode(data []byte) (*Buffer, error) {
	mime := Sniff(data)
	if !Supported(mime) {
		return nil, &DecodeError{MIME: mime, Err: image.ErrFormat}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{MIME: mime, Err: err}
	}

	buf := NewBuffer(img)
	if err := buf.Validate(); err != nil {
		return nil, &DecodeError{MIME: mime, Err: err}
	}
	return buf, nil
}

func Encode(buf *Buffer, format Format) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	out := &bytes.Buffer{}
	switch format {
	case FormatPNG, "":
		if err := png.Encode(out, pngImage(buf)); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	case FormatJPEG:
		if HasAlpha(buf.Image) {
			return nil, fmt.Errorf("%s: %w", format, ErrFormatNoAlpha)
		}
		if err := jpeg.Encode(out, buf.Image, &jpeg.Options{Quality: 95}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return out.Bytes(), nil
}

// withAlpha png.Encode 遇到全不透明的图会省掉 alpha 通道，这里强制保留
type withAlpha struct {
	*image.NRGBA
}

func (withAlpha) Opaque() bool { return false }

// pngImage RGBA 模式始终带 alpha 通道；不透明的灰度缓冲区写成 8 位灰度 PNG
func pngImage(buf *Buffer) image.Image {
	switch {
	case buf.Mode == ModeRGBA:
		return withAlpha{buf.Image}
	case buf.Mode != ModeGray || HasAlpha(buf.Image):
		return buf.Image
	}
	gray := image.NewGray(buf.Image.Bounds())
	w, h := buf.Width(), buf.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := buf.Image.NRGBAAt(x, y)
			gray.SetGray(x, y, color.Gray{Y: c.R})
		}
	}
	return gray
}
