package compose

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/chaos-io/bgremove/codec"
)

// Composite 把前景按 alpha 贴到新背景上
//
//	背景拉伸到前景的尺寸（不保持宽高比）
//	背景先铺在不透明黑底上，结果没有任何透明像素
func Composite(fg, bg *codec.Buffer) (*codec.Buffer, error) {
	if err := fg.Validate(); err != nil {
		return nil, fmt.Errorf("foreground: %w", err)
	}
	if err := bg.Validate(); err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}

	w, h := fg.Width(), fg.Height()
	var backdrop image.Image = bg.Image
	if bg.Width() != w || bg.Height() != h {
		backdrop = resize.Resize(uint(w), uint(h), bg.Image, resize.Bicubic)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), backdrop, backdrop.Bounds().Min, draw.Over)
	draw.Draw(dst, dst.Bounds(), fg.Image, image.Point{}, draw.Over)

	return &codec.Buffer{Image: dst, Mode: codec.ModeRGB}, nil
}
