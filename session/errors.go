package session

import (
	"errors"
	"fmt"

	"github.com/chaos-io/bgremove/codec"
	"github.com/chaos-io/bgremove/rembg"
)

const (
	ReasonTooLarge    = "too large"
	ReasonUnsupported = "unsupported type"
	ReasonTooManyPx   = "too many pixels"
)

// ValidationError 上传不合法（过大或类型不支持），用户可以自行修正
type ValidationError struct {
	Asset  string
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Asset, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// TooLarge 超过上传上限
func TooLarge(asset string, limit int64) *ValidationError {
	return &ValidationError{Asset: asset, Reason: ReasonTooLarge, Detail: humanBytes(limit)}
}

// TooManyPixels 文件头声明的尺寸超过像素上限
func TooManyPixels(asset string, w, h int, limit int64) *ValidationError {
	return &ValidationError{
		Asset:  asset,
		Reason: ReasonTooManyPx,
		Detail: fmt.Sprintf("%dx%d, at most %s", w, h, humanPixels(limit)),
	}
}

func humanPixels(n int64) string {
	const mp = 1000 * 1000
	if n%mp == 0 {
		return fmt.Sprintf("%d megapixels", n/mp)
	}
	return fmt.Sprintf("%d pixels", n)
}

func humanBytes(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// PipelineError 任一阶段失败都包装成它，Err 保留具体的错误类型
type PipelineError struct {
	Stage State
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Message 给 UI 展示的一句话
func Message(err error) string {
	var verr *ValidationError
	var derr *codec.DecodeError
	var eerr *rembg.ExtractionError
	switch {
	case errors.As(err, &verr):
		switch verr.Reason {
		case ReasonTooLarge:
			return fmt.Sprintf("The uploaded %s is too large. Please upload an image smaller than %s.", verr.Asset, verr.Detail)
		case ReasonTooManyPx:
			return fmt.Sprintf("The uploaded %s has too many pixels (%s).", verr.Asset, verr.Detail)
		}
		return fmt.Sprintf("The uploaded %s is not a PNG or JPEG image.", verr.Asset)
	case errors.As(err, &derr):
		return "The uploaded image could not be read. It may be corrupt or truncated."
	case errors.As(err, &eerr):
		return "Background removal failed. Please try again or upload a different image."
	case err == nil:
		return ""
	default:
		return "Image processing failed: " + err.Error()
	}
}
