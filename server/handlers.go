package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/bgremove/codec"
	"github.com/chaos-io/bgremove/filter"
	"github.com/chaos-io/bgremove/rembg"
	"github.com/chaos-io/bgremove/session"
)

const (
	fieldImage      = "image"
	fieldBackground = "background"
)

const msgNoImage = "Please upload an image to proceed."

var errNoImage = errors.New("image is required")

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", s.index)
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok", "max_upload_bytes": s.ctrl.MaxUploadBytes()}
	if s.prober != nil {
		st := s.prober.Status()
		resp["extractor"] = st
		if !st.Healthy && !st.CheckedAt.IsZero() {
			resp["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleProcess 完整流水线，返回可下载的 PNG
func (s *Server) handleProcess(c *gin.Context) {
	settings := filter.DefaultSettings()
	if err := c.ShouldBind(&settings); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(c, session.TooLarge("upload", s.ctrl.MaxUploadBytes()))
			return
		}
		s.abort(c, http.StatusBadRequest, fmt.Errorf("invalid controls: %w", err))
		return
	}
	if err := settings.Validate(); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	subject, ok := s.readAsset(c, fieldImage, true)
	if !ok {
		return
	}
	background, ok := s.readAsset(c, fieldBackground, false)
	if !ok {
		return
	}

	res, err := s.ctrl.Run(c.Request.Context(), *subject, background, settings)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.download(c, res, s.cfg.Output.Filename)
}

// handleRemove 只返回抠图结果
func (s *Server) handleRemove(c *gin.Context) {
	subject, ok := s.readAsset(c, fieldImage, true)
	if !ok {
		return
	}

	res, err := s.ctrl.RemoveOnly(c.Request.Context(), *subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.download(c, res, s.cfg.Output.RemovedFilename)
}

// readAsset 读取上传文件；可选字段缺失时返回 (nil, true)
func (s *Server) readAsset(c *gin.Context, field string, required bool) (*session.Asset, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			s.fail(c, session.TooLarge(field, s.ctrl.MaxUploadBytes()))
		case errors.Is(err, http.ErrMissingFile) && !required:
			return nil, true
		case errors.Is(err, http.ErrMissingFile):
			s.abortWithMessage(c, http.StatusBadRequest, errNoImage, msgNoImage)
		default:
			s.abort(c, http.StatusBadRequest, fmt.Errorf("read form: %w", err))
		}
		return nil, false
	}

	data, err := readUpload(fh, s.ctrl.MaxUploadBytes())
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return nil, false
	}
	return &session.Asset{Name: field, Data: data, Size: fh.Size}, true
}

// readUpload 超过上限的文件不读内容，交给 HandleUpload 按声明大小拒绝
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh.Size > limit {
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

func (s *Server) download(c *gin.Context, res *session.Result, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("X-Image-Width", fmt.Sprint(res.Width))
	c.Header("X-Image-Height", fmt.Sprint(res.Height))
	c.Data(http.StatusOK, codec.MIMEPNG, res.PNG)
}

func (s *Server) fail(c *gin.Context, err error) {
	s.abortWithMessage(c, statusFor(err), err, session.Message(err))
}

func (s *Server) abort(c *gin.Context, status int, err error) {
	s.abortWithMessage(c, status, err, err.Error())
}

func (s *Server) abortWithMessage(c *gin.Context, status int, err error, msg string) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func statusFor(err error) int {
	var verr *session.ValidationError
	var derr *codec.DecodeError
	var eerr *rembg.ExtractionError
	switch {
	case errors.As(err, &verr):
		switch verr.Reason {
		case session.ReasonTooLarge, session.ReasonTooManyPx:
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.As(err, &derr):
		return http.StatusBadRequest
	case errors.As(err, &eerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
