// ABOUTME: Shared setup for commands that touch audio devices
// ABOUTME: Opens the configured backend and the optional metrics endpoint
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/internal/config"
	"github.com/Resonate-Protocol/soundcard-go/internal/metrics"
	"github.com/Resonate-Protocol/soundcard-go/pkg/soundcard"
	"github.com/sirupsen/logrus"
)

// session is an open soundcard context plus the metrics server, if any
type session struct {
	*soundcard.Context
	cfg     config.Config
	logger  logrus.FieldLogger
	metrics *metrics.Collector
	server  *http.Server
}

func openSession(cfg config.Config, logger logrus.FieldLogger) (*session, error) {
	s := &session{cfg: cfg, logger: logger}

	opts := soundcard.Options{
		Backend: cfg.Backend,
		Virtual: cfg.VirtualBackend(),
		AppName: cfg.AppName,
		Logger:  logger,
	}
	if cfg.Metrics.Addr != "" {
		s.metrics = metrics.New()
		opts.Metrics = s.metrics
	}

	ctx, err := soundcard.New(opts)
	if err != nil {
		return nil, err
	}
	s.Context = ctx

	if s.metrics != nil {
		s.serveMetrics(cfg.Metrics.Addr)
	}
	return s, nil
}

func (s *session) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("metrics server stopped")
		}
	}()
	s.logger.WithField("addr", addr).Info("serving metrics")
}

func (s *session) Close() error {
	s.stopMetrics(2 * time.Second)
	return s.Context.Close()
}

// stopMetrics shuts the metrics server down, giving in-flight scrapes up
// to timeout
func (s *session) stopMetrics(timeout time.Duration) {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to stop metrics server")
	}
}

// streamOptions applies the global blocksize
func (s *session) streamOptions(extra ...soundcard.StreamOption) []soundcard.StreamOption {
	var opts []soundcard.StreamOption
	if s.cfg.Blocksize > 0 {
		opts = append(opts, soundcard.WithBlocksize(s.cfg.Blocksize))
	}
	return append(opts, extra...)
}

func (s *session) speaker(device string) (*soundcard.Speaker, error) {
	if device == "" {
		return s.DefaultSpeaker()
	}
	return s.GetSpeaker(device)
}

func (s *session) microphone(device string, loopback bool) (*soundcard.Microphone, error) {
	if device == "" {
		return s.DefaultMicrophone()
	}
	return s.GetMicrophone(device, loopback)
}
