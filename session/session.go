// Package session 串起一次交互的完整流水线：
// 校验上传 -> 解码 -> 抠图 -> 调节 -> [换背景] -> 编码 PNG。
//
// 每次调用同步执行到底，任一阶段失败立即返回，不重试，也不返回半成品。
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/ksuid"

	"github.com/chaos-io/bgremove/codec"
	"github.com/chaos-io/bgremove/compose"
	"github.com/chaos-io/bgremove/filter"
	"github.com/chaos-io/bgremove/rembg"
)

const (
	// DefaultMaxUploadBytes 5 MiB
	DefaultMaxUploadBytes int64 = 5 * 1024 * 1024
	// DefaultMaxPixels 解码后的像素上限，小文件也可能声明超大尺寸
	DefaultMaxPixels int64 = 40_000_000
)

// Asset 一次上传：原始字节 + 声明的大小
type Asset struct {
	Name string
	Data []byte
	Size int64
}

func NewAsset(name string, data []byte) Asset {
	return Asset{Name: name, Data: data, Size: int64(len(data))}
}

// Result 成功时的输出，生成后不再修改
type Result struct {
	ID     string
	PNG    []byte
	Width  int
	Height int
	Mode   codec.Mode
	States []State
}

type Controller struct {
	remover        rembg.Remover
	backend        string
	maxUploadBytes int64
	maxPixels      int64

	decode func([]byte) (*codec.Buffer, error)
}

type Option func(*Controller)

func WithMaxUploadBytes(n int64) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxUploadBytes = n
		}
	}
}

func WithMaxPixels(n int64) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxPixels = n
		}
	}
}

// WithBackend 只用于错误信息和日志
func WithBackend(name string) Option {
	return func(c *Controller) { c.backend = name }
}

func NewController(remover rembg.Remover, opts ...Option) *Controller {
	c := &Controller{
		remover:        remover,
		backend:        "default",
		maxUploadBytes: DefaultMaxUploadBytes,
		maxPixels:      DefaultMaxPixels,
		decode:         codec.Decode,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) MaxUploadBytes() int64 { return c.maxUploadBytes }

// HandleUpload 依次检查字节数、类型、文件头声明的像素数，都通过才解码
func (c *Controller) HandleUpload(asset Asset) (*codec.Buffer, error) {
	size := asset.Size
	if n := int64(len(asset.Data)); n > size {
		size = n
	}
	if size > c.maxUploadBytes {
		return nil, TooLarge(asset.Name, c.maxUploadBytes)
	}

	if mime := codec.Sniff(asset.Data); !codec.Supported(mime) {
		return nil, &ValidationError{Asset: asset.Name, Reason: ReasonUnsupported, Detail: mime}
	}

	cfg, err := codec.DecodeConfig(asset.Data)
	if err != nil {
		return nil, err
	}
	if int64(cfg.Width)*int64(cfg.Height) > c.maxPixels {
		return nil, TooManyPixels(asset.Name, cfg.Width, cfg.Height, c.maxPixels)
	}

	return c.decode(asset.Data)
}

// run 记录一次流水线的状态转移
type run struct {
	id     string
	states []State
	log    *slog.Logger
}

func (r *run) enter(s State) {
	r.states = append(r.states, s)
	r.log.Debug("pipeline state", "state", s.String())
}

func (r *run) fail(err error) error {
	stage := r.states[len(r.states)-1]
	r.states = append(r.states, StateFailed)
	r.log.Warn("pipeline failed", "stage", stage.String(), "error", err)
	return &PipelineError{Stage: stage, Err: err}
}

func (c *Controller) newRun(ctx context.Context) *run {
	id := RequestID(ctx)
	if id == "" {
		id = ksuid.New().String()
	}
	return &run{id: id, states: []State{StateIdle}, log: slog.With("request_id", id)}
}

// Run 完整流水线；background 为 nil 时跳过换背景
func (c *Controller) Run(ctx context.Context, subject Asset, background *Asset, settings filter.Settings) (*Result, error) {
	r := c.newRun(ctx)

	r.enter(StateValidating)
	fg, err := c.HandleUpload(subject)
	if err != nil {
		return nil, r.fail(err)
	}
	var bg *codec.Buffer
	if background != nil {
		if bg, err = c.HandleUpload(*background); err != nil {
			return nil, r.fail(err)
		}
	}

	r.enter(StateExtracting)
	cut, err := c.extract(ctx, fg)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateFiltering)
	edited := filter.Apply(cut, settings)

	if bg != nil {
		r.enter(StateCompositing)
		if edited, err = compose.Composite(edited, bg); err != nil {
			return nil, r.fail(err)
		}
	}

	return c.finish(r, edited)
}

// RemoveOnly 只抠图，不做调节和换背景
func (c *Controller) RemoveOnly(ctx context.Context, subject Asset) (*Result, error) {
	r := c.newRun(ctx)

	r.enter(StateValidating)
	fg, err := c.HandleUpload(subject)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateExtracting)
	cut, err := c.extract(ctx, fg)
	if err != nil {
		return nil, r.fail(err)
	}

	return c.finish(r, cut)
}

func (c *Controller) extract(ctx context.Context, buf *codec.Buffer) (*codec.Buffer, error) {
	out, err := c.remover.Remove(ctx, buf.Image)
	if err != nil {
		return nil, &rembg.ExtractionError{Backend: c.backend, Err: err}
	}
	cut := codec.ToNRGBA(out)
	if cut.Bounds().Size() != buf.Image.Bounds().Size() {
		return nil, &rembg.ExtractionError{
			Backend: c.backend,
			Err:     fmt.Errorf("size changed from %v to %v", buf.Image.Bounds().Size(), cut.Bounds().Size()),
		}
	}
	return &codec.Buffer{Image: cut, Mode: codec.ModeRGBA}, nil
}

func (c *Controller) finish(r *run, buf *codec.Buffer) (*Result, error) {
	r.enter(StateEncoding)
	data, err := codec.Encode(buf, codec.FormatPNG)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateReady)
	r.log.Info("pipeline ready", "width", buf.Width(), "height", buf.Height(), "mode", buf.Mode.String(), "bytes", len(data))
	return &Result{
		ID:     r.id,
		PNG:    data,
		Width:  buf.Width(),
		Height: buf.Height(),
		Mode:   buf.Mode,
		States: r.states,
	}, nil
}
