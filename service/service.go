package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/convtest/metrics"
	"github.com/ethereum-optimism/infra/convtest/types"
)

// Config selects which servers are started
type Config struct {
	HealthzEnabled bool
	HealthzAddr    string
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer
	config  Config
	log     log.Logger
}

func New(cfg Config, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Root()
	}
	return &Service{
		Healthz: NewHealthzServer(),
		Metrics: &MetricsServer{},
		config:  cfg,
		log:     logger,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	if s.config.HealthzEnabled {
		go func() {
			addr := s.config.HealthzAddr
			s.log.Info("starting healthz server", "addr", addr)
			if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("error starting healthz server", err)
			}
		}()
	}

	if s.config.MetricsEnabled {
		go func() {
			addr := net.JoinHostPort(s.config.MetricsHost, strconv.Itoa(s.config.MetricsPort))
			s.log.Info("starting metrics server", "addr", addr)
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	s.log.Info("service started")
}

// RunStarted marks a run as in progress on /status
func (s *Service) RunStarted(runID string, total int) {
	s.Healthz.SetRunning(runID, total)
}

// RunCompleted publishes the finalized summary on /status
func (s *Service) RunCompleted(summary *types.RunSummary) {
	s.Healthz.SetSummary(summary)
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
