package codec

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
)

// Mode 像素缓冲区的颜色模式
type Mode int

const (
	ModeRGB Mode = iota
	ModeRGBA
	ModeGray
)

func (m Mode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModeGray:
		return "Gray"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var ErrEmptyImage = errors.New("image has zero width or height")

// Buffer 流水线各阶段之间传递的内存位图
//
// 像素统一存成非预乘的 NRGBA，原点为 (0,0)；Mode 记录逻辑上的颜色模式。
// 一个 Buffer 同一时间只属于一个阶段，阶段之间转移所有权，不共享修改。
type Buffer struct {
	Image *image.NRGBA
	Mode  Mode
}

// NewBuffer 把任意 image.Image 复制成 Buffer，根据 alpha 推断 RGB / RGBA
func NewBuffer(img image.Image) *Buffer {
	nrgba := ToNRGBA(img)
	mode := ModeRGB
	if HasAlpha(nrgba) {
		mode = ModeRGBA
	}
	return &Buffer{Image: nrgba, Mode: mode}
}

func (b *Buffer) Width() int  { return b.Image.Bounds().Dx() }
func (b *Buffer) Height() int { return b.Image.Bounds().Dy() }

// Validate 检查尺寸和像素数据长度是否一致
func (b *Buffer) Validate() error {
	if b == nil || b.Image == nil {
		return ErrEmptyImage
	}
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return ErrEmptyImage
	}
	if b.Image.Stride < w*4 || len(b.Image.Pix) < (h-1)*b.Image.Stride+w*4 {
		return fmt.Errorf("pixel data too short for %dx%d %s", w, h, b.Mode)
	}
	return nil
}

// Clone 深拷贝
func (b *Buffer) Clone() *Buffer {
	dst := image.NewNRGBA(image.Rect(0, 0, b.Width(), b.Height()))
	draw.Draw(dst, dst.Bounds(), b.Image, b.Image.Bounds().Min, draw.Src)
	return &Buffer{Image: dst, Mode: b.Mode}
}

// ToNRGBA 转为原点在 (0,0) 的 NRGBA，方便统一处理
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// HasAlpha 检查 alpha 通道是否真的包含透明信息
// 只要存在非 255（非完全不透明），就认为已有抠图
func HasAlpha(img *image.NRGBA) bool {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] != 255 {
				return true
			}
		}
	}
	return false
}
