package rembg

import (
	"context"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/chaos-io/bgremove/codec"
)

// ReuseAlpha 上传的图已经带有有效透明度时跳过推理，直接使用
type ReuseAlpha struct {
	next Remover
}

func NewReuseAlpha(next Remover) *ReuseAlpha {
	return &ReuseAlpha{next: next}
}

func (r *ReuseAlpha) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	src := codec.ToNRGBA(img)
	if codec.HasAlpha(src) {
		slog.Debug("input already has alpha, skip inference")
		return imaging.Clone(src), nil
	}
	return r.next.Remove(ctx, src)
}
