package server

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/bgremove/config"
	"github.com/chaos-io/bgremove/rembg"
	"github.com/chaos-io/bgremove/session"
)

//go:embed index.html
var indexTemplate string

// multipart 头部等额外开销
const formOverhead = 1 << 20

type Server struct {
	cfg    *config.Config
	ctrl   *session.Controller
	prober *rembg.Prober
	index  []byte
	engine *gin.Engine
}

// New prober 可以为 nil（passthrough 模式没有远端服务）
func New(cfg *config.Config, ctrl *session.Controller, prober *rembg.Prober) *Server {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	s := &Server{
		cfg:    cfg,
		ctrl:   ctrl,
		prober: prober,
		index: []byte(strings.NewReplacer(
			"{{MAX_BYTES}}", strconv.FormatInt(ctrl.MaxUploadBytes(), 10),
			"{{FILENAME}}", cfg.Output.Filename,
		).Replace(indexTemplate)),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	r.MaxMultipartMemory = 2*ctrl.MaxUploadBytes() + formOverhead

	r.GET("/", s.handleIndex)
	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api", limitBody(2*ctrl.MaxUploadBytes()+formOverhead))
	api.POST("/process", s.handleProcess)
	api.POST("/remove", s.handleRemove)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 阻塞直到 ctx 取消，然后优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	if s.prober != nil {
		s.prober.Start()
		defer s.prober.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
