package rembg

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/semaphore"
)

// Limited 限制同时进行的推理数量，一个请求占一个槽位
type Limited struct {
	next Remover
	sem  *semaphore.Weighted
}

func NewLimited(next Remover, n int64) *Limited {
	if n < 1 {
		n = 1
	}
	return &Limited{next: next, sem: semaphore.NewWeighted(n)}
}

func (l *Limited) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for extractor slot: %w", err)
	}
	defer l.sem.Release(1)

	return l.next.Remove(ctx, img)
}
