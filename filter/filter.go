// Package filter 对抠图结果做简单的像素级调节。
//
// 顺序固定：亮度 -> 对比度 -> 灰度 -> 高斯模糊 -> 边缘增强，
// 每一步只在对应参数生效时执行，上一步的输出是下一步的输入。
package filter

import (
	"image/color"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"github.com/chaos-io/bgremove/codec"
)

const (
	// BlurSigma 高斯模糊半径，不对用户开放
	BlurSigma = 2.0

	midGray = 128.0
)

// edgeEnhanceKernel 3x3 边缘增强核，归一化后系数和为 1
var edgeEnhanceKernel = [9]float64{
	-1, -1, -1,
	-1, 10, -1,
	-1, -1, -1,
}

// Apply 按固定顺序执行生效的调节，返回新的 Buffer，不修改输入
func Apply(buf *codec.Buffer, s Settings) *codec.Buffer {
	if s.IsIdentity() {
		return buf.Clone()
	}

	img := buf.Image
	mode := buf.Mode

	if s.Brightness != 1.0 {
		img = imaging.AdjustFunc(img, brightness(s.Brightness))
	}
	if s.Contrast != 1.0 {
		img = imaging.AdjustFunc(img, contrast(s.Contrast))
	}
	if s.Grayscale {
		img = imaging.AdjustFunc(img, grayscale)
		mode = codec.ModeGray
	}
	if s.Blur {
		img = imaging.Blur(img, BlurSigma)
	}
	if s.EdgeEnhance {
		img = imaging.Convolve3x3(img, edgeEnhanceKernel, &imaging.ConvolveOptions{Normalize: true})
	}

	slog.Debug("filters applied", "settings", s, "mode", mode.String())
	return &codec.Buffer{Image: img, Mode: mode}
}

// brightness 与黑色混合：v * factor，<1 变暗，>1 变亮
func brightness(factor float64) func(color.NRGBA) color.NRGBA {
	return func(c color.NRGBA) color.NRGBA {
		c.R = clamp(float64(c.R) * factor)
		c.G = clamp(float64(c.G) * factor)
		c.B = clamp(float64(c.B) * factor)
		return c
	}
}

// contrast 以中灰 128 为轴拉伸
func contrast(factor float64) func(color.NRGBA) color.NRGBA {
	return func(c color.NRGBA) color.NRGBA {
		c.R = clamp(midGray + (float64(c.R)-midGray)*factor)
		c.G = clamp(midGray + (float64(c.G)-midGray)*factor)
		c.B = clamp(midGray + (float64(c.B)-midGray)*factor)
		return c
	}
}

// grayscale 整数权重的亮度公式，r=g=b 时结果不变，所以重复转换是幂等的
func grayscale(c color.NRGBA) color.NRGBA {
	y := uint8((299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B) + 500) / 1000)
	return color.NRGBA{R: y, G: y, B: y, A: c.A}
}

func clamp(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
