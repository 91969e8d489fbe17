package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/bgremove/codec"
	"github.com/chaos-io/bgremove/filter"
	"github.com/chaos-io/bgremove/rembg"
)

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

// borderRemover 把最外一圈像素当作背景，并记录输出
type borderRemover struct {
	last *image.NRGBA
	err  error
}

func (b *borderRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := codec.ToNRGBA(img)
	out = codec.NewBuffer(out).Clone().Image
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				out.SetNRGBA(x, y, color.NRGBA{})
			}
		}
	}
	b.last = out
	return out, nil
}

func decodePNG(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return codec.ToNRGBA(img)
}

func TestHandleUpload_TooLargeSkipsDecode(t *testing.T) {
	t.Parallel()

	c := NewController(rembg.NewDefaultRemBG())
	decoded := 0
	c.decode = func(b []byte) (*codec.Buffer, error) {
		decoded++
		return codec.Decode(b)
	}

	small := encodePNG(t, fill(2, 2, color.NRGBA{A: 255}))
	_, err := c.HandleUpload(Asset{Name: "image", Data: small, Size: 6 * 1024 * 1024})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonTooLarge, verr.Reason)
	assert.Equal(t, 0, decoded)

	_, err = c.HandleUpload(NewAsset("image", make([]byte, DefaultMaxUploadBytes+1)))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonTooLarge, verr.Reason)
	assert.Equal(t, 0, decoded)

	_, err = c.HandleUpload(NewAsset("image", small))
	require.NoError(t, err)
	assert.Equal(t, 1, decoded)
}

// pngHeader 只有签名和 IHDR 的灰度 PNG，几十字节就能声明任意尺寸
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 17)
	copy(ihdr, "IHDR")
	binary.BigEndian.PutUint32(ihdr[4:], w)
	binary.BigEndian.PutUint32(ihdr[8:], h)
	ihdr[12] = 8

	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, 13)
	out = append(out, ihdr...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(ihdr))
}

func TestHandleUpload_TooManyPixelsSkipsDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
		data []byte
	}{
		{name: "header declares 40000x40000", data: pngHeader(40000, 40000)},
		{name: "8000x8000 over default", data: pngHeader(8000, 8000)},
		{name: "custom limit", opts: []Option{WithMaxPixels(100)}, data: encodePNG(t, fill(11, 10, color.NRGBA{A: 255}))},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewController(rembg.NewDefaultRemBG(), tt.opts...)
			decoded := 0
			c.decode = func(b []byte) (*codec.Buffer, error) {
				decoded++
				return codec.Decode(b)
			}

			_, err := c.HandleUpload(NewAsset("image", tt.data))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, ReasonTooManyPx, verr.Reason)
			assert.Equal(t, 0, decoded)
			assert.Contains(t, Message(err), "too many pixels")
		})
	}

	c := NewController(rembg.NewDefaultRemBG(), WithMaxPixels(100))
	_, err := c.HandleUpload(NewAsset("image", encodePNG(t, fill(10, 10, color.NRGBA{A: 255}))))
	assert.NoError(t, err)
}

func TestHandleUpload_Unsupported(t *testing.T) {
	t.Parallel()

	c := NewController(rembg.NewDefaultRemBG())
	_, err := c.HandleUpload(NewAsset("background", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00")))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonUnsupported, verr.Reason)
	assert.Equal(t, "image/gif", verr.Detail)
}

func TestHandleUpload_ExactLimitAccepted(t *testing.T) {
	t.Parallel()

	data := encodePNG(t, fill(3, 3, color.NRGBA{A: 255}))
	c := NewController(rembg.NewDefaultRemBG(), WithMaxUploadBytes(int64(len(data))))
	_, err := c.HandleUpload(NewAsset("image", data))
	assert.NoError(t, err)
}

func TestRun_SubjectOnly(t *testing.T) {
	t.Parallel()

	remover := &borderRemover{}
	c := NewController(remover)

	subject := NewAsset("image", encodeJPEG(t, fill(100, 100, color.NRGBA{R: 200, G: 120, B: 40, A: 255})))
	res, err := c.Run(context.Background(), subject, nil, filter.DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, []State{StateIdle, StateValidating, StateExtracting, StateFiltering, StateEncoding, StateReady}, res.States)
	assert.Equal(t, 100, res.Width)
	assert.Equal(t, 100, res.Height)
	assert.Equal(t, codec.ModeRGBA, res.Mode)
	assert.NotEmpty(t, res.ID)

	out := decodePNG(t, res.PNG)
	assert.True(t, codec.HasAlpha(out))
	assert.Equal(t, remover.last.Pix, out.Pix)
}

func TestRun_OpaqueSubjectKeepsAlphaChannel(t *testing.T) {
	t.Parallel()

	c := NewController(rembg.NewDefaultRemBG())
	subject := NewAsset("image", encodeJPEG(t, fill(100, 100, color.NRGBA{R: 30, G: 60, B: 90, A: 255})))
	res, err := c.Run(context.Background(), subject, nil, filter.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, codec.ModeRGBA, res.Mode)

	// IHDR color type 6 = RGBA
	assert.Equal(t, byte(6), res.PNG[25])
	img, err := png.Decode(bytes.NewReader(res.PNG))
	require.NoError(t, err)
	_, ok := img.(*image.NRGBA)
	assert.True(t, ok, "got %T", img)
}

func TestRun_WithBackground(t *testing.T) {
	t.Parallel()

	c := NewController(&borderRemover{})
	subject := NewAsset("image", encodeJPEG(t, fill(100, 100, color.NRGBA{R: 200, A: 255})))
	background := NewAsset("background", encodePNG(t, fill(50, 50, color.NRGBA{G: 255, A: 255})))

	res, err := c.Run(context.Background(), subject, &background, filter.DefaultSettings())
	require.NoError(t, err)

	assert.Contains(t, res.States, StateCompositing)
	assert.Equal(t, codec.ModeRGB, res.Mode)

	out := decodePNG(t, res.PNG)
	assert.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())
	assert.False(t, codec.HasAlpha(out))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, out.NRGBAAt(0, 0))
}

func TestRun_BrightnessDoublesMidGray(t *testing.T) {
	t.Parallel()

	c := NewController(rembg.NewDefaultRemBG())
	subject := NewAsset("image", encodePNG(t, fill(10, 10, color.NRGBA{R: 100, G: 100, B: 100, A: 255})))

	s := filter.DefaultSettings()
	s.Brightness = 2.0
	res, err := c.Run(context.Background(), subject, nil, s)
	require.NoError(t, err)

	out := decodePNG(t, res.PNG)
	for i := 0; i < len(out.Pix); i += 4 {
		require.Equal(t, []uint8{200, 200, 200, 255}, out.Pix[i:i+4])
	}
}

func TestRun_Failures(t *testing.T) {
	t.Parallel()

	good := NewAsset("image", encodePNG(t, fill(4, 4, color.NRGBA{A: 255})))
	bigBackground := Asset{Name: "background", Data: good.Data, Size: DefaultMaxUploadBytes * 2}
	corrupt := NewAsset("image", good.Data[:len(good.Data)/2])

	tests := []struct {
		name       string
		remover    rembg.Remover
		subject    Asset
		background *Asset
		wantStage  State
		check      func(t *testing.T, err error)
	}{
		{
			name:      "corrupt subject",
			remover:   &borderRemover{},
			subject:   corrupt,
			wantStage: StateValidating,
			check: func(t *testing.T, err error) {
				var derr *codec.DecodeError
				assert.True(t, errors.As(err, &derr))
			},
		},
		{
			name:       "background too large",
			remover:    &borderRemover{},
			subject:    good,
			background: &bigBackground,
			wantStage:  StateValidating,
			check: func(t *testing.T, err error) {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "background", verr.Asset)
			},
		},
		{
			name:      "extractor fails",
			remover:   &borderRemover{err: errors.New("model not loaded")},
			subject:   good,
			wantStage: StateExtracting,
			check: func(t *testing.T, err error) {
				var eerr *rembg.ExtractionError
				require.True(t, errors.As(err, &eerr))
				assert.Contains(t, err.Error(), "model not loaded")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := NewController(tt.remover).Run(context.Background(), tt.subject, tt.background, filter.DefaultSettings())
			assert.Nil(t, res)

			var perr *PipelineError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantStage, perr.Stage)
			assert.NotEmpty(t, Message(err))
			tt.check(t, err)
		})
	}
}

type resizingRemover struct{}

func (resizingRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	return image.NewNRGBA(image.Rect(0, 0, 1, 1)), nil
}

func TestRun_ExtractorMustKeepSize(t *testing.T) {
	t.Parallel()

	subject := NewAsset("image", encodePNG(t, fill(4, 4, color.NRGBA{A: 255})))
	_, err := NewController(resizingRemover{}).Run(context.Background(), subject, nil, filter.DefaultSettings())

	var eerr *rembg.ExtractionError
	assert.True(t, errors.As(err, &eerr))
}

func TestRemoveOnly(t *testing.T) {
	t.Parallel()

	remover := &borderRemover{}
	ctx := WithRequestID(context.Background(), "req-1")
	subject := NewAsset("image", encodePNG(t, fill(5, 7, color.NRGBA{B: 90, A: 255})))

	res, err := NewController(remover).RemoveOnly(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, "req-1", res.ID)
	assert.Equal(t, []State{StateIdle, StateValidating, StateExtracting, StateEncoding, StateReady}, res.States)
	assert.Equal(t, remover.last.Pix, decodePNG(t, res.PNG).Pix)
}

func TestMessage(t *testing.T) {
	t.Parallel()

	tooLarge := &PipelineError{Stage: StateValidating, Err: &ValidationError{Asset: "image", Reason: ReasonTooLarge, Detail: "5MB"}}
	assert.Equal(t, "The uploaded image is too large. Please upload an image smaller than 5MB.", Message(tooLarge))
	assert.Equal(t, "", Message(nil))
	assert.Contains(t, Message(errors.New("x")), "Image processing failed")
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "compositing", StateCompositing.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateFiltering.Terminal())
}
