package rembg

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Status 最近一次健康检查的结果
type Status struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// Prober 定时探测远端推理服务
type Prober struct {
	pinger  Pinger
	timeout time.Duration
	cron    *cron.Cron

	mu     sync.RWMutex
	status Status
}

// NewProber spec 为 cron 表达式，例如 "@every 30s"
func NewProber(pinger Pinger, spec string, timeout time.Duration) (*Prober, error) {
	p := &Prober{
		pinger:  pinger,
		timeout: timeout,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := p.cron.AddFunc(spec, p.Check); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prober) Start() {
	go p.Check()
	p.cron.Start()
}

func (p *Prober) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Prober) Check() {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	st := Status{Healthy: true, CheckedAt: time.Now()}
	if err := p.pinger.Ping(ctx); err != nil {
		st.Healthy = false
		st.Error = err.Error()
		slog.Warn("extractor probe failed", "error", err)
	}

	p.mu.Lock()
	prev := p.status
	p.status = st
	p.mu.Unlock()

	if st.Healthy && !prev.Healthy && !prev.CheckedAt.IsZero() {
		slog.Info("extractor recovered")
	}
}

func (p *Prober) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}
