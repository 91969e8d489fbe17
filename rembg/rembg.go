package rembg

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Remover 抠图：背景像素 alpha = 0，前景保留原色，尺寸不变
type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// Pinger 远端推理服务的健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// ExtractionError 模型推理失败，本次请求直接失败，不重试
type ExtractionError struct {
	Backend string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("remove background (%s): %v", e.Backend, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// DefaultRemBG 不做推理，所有像素都当作前景，离线调试用
type DefaultRemBG struct{}

func NewDefaultRemBG() *DefaultRemBG {
	return &DefaultRemBG{}
}

func (d *DefaultRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return imaging.Clone(img), nil
}
