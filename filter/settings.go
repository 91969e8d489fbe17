package filter

import (
	"fmt"
	"math"
)

const (
	MinFactor  = 0.5
	MaxFactor  = 2.0
	FactorStep = 0.1
)

// Settings 一次流水线调用用到的全部调节参数，按值传递，不可变
type Settings struct {
	Brightness  float64 `json:"brightness" form:"brightness,default=1.0" yaml:"brightness"`
	Contrast    float64 `json:"contrast" form:"contrast,default=1.0" yaml:"contrast"`
	Grayscale   bool    `json:"grayscale" form:"grayscale" yaml:"grayscale"`
	Blur        bool    `json:"blur" form:"blur" yaml:"blur"`
	EdgeEnhance bool    `json:"edge_enhance" form:"edge_enhance" yaml:"edge_enhance"`
}

func DefaultSettings() Settings {
	return Settings{Brightness: 1.0, Contrast: 1.0}
}

// Validate 检查滑块取值：[0.5, 2.0]，步长 0.1。
// Apply 本身不做校验，调用方（UI 边界）负责。
func (s Settings) Validate() error {
	if err := checkFactor("brightness", s.Brightness); err != nil {
		return err
	}
	return checkFactor("contrast", s.Contrast)
}

// IsIdentity 所有调节都处于默认值
func (s Settings) IsIdentity() bool {
	return s.Brightness == 1.0 && s.Contrast == 1.0 && !s.Grayscale && !s.Blur && !s.EdgeEnhance
}

func checkFactor(name string, v float64) error {
	if math.IsNaN(v) || v < MinFactor || v > MaxFactor {
		return fmt.Errorf("%s %.2f out of range [%.1f, %.1f]", name, v, MinFactor, MaxFactor)
	}
	steps := v / FactorStep
	if math.Abs(steps-math.Round(steps)) > 1e-6 {
		return fmt.Errorf("%s %.2f is not a multiple of %.1f", name, v, FactorStep)
	}
	return nil
}
