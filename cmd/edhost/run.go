package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/ededitor/edhost/driver"
	"github.com/ededitor/edhost/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		ticks       int
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "run <scene>",
		Short: "Run a scene without a display",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.loadScene(cmd, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ticks") {
				s.Ticks = ticks
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			if metricsAddr != "" {
				stop := serveMetrics(a.log, metricsAddr, reg)
				defer stop()
			}

			d, err := driver.New(ctx, s, driver.Options{
				Logger:    a.log,
				Stdout:    cmd.OutOrStdout(),
				Metrics:   reg,
				Presenter: logPresenter(a.log),
			})
			if err != nil {
				return err
			}
			defer d.Close(context.Background())

			if err := d.Init(ctx); err != nil {
				return err
			}
			return d.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 0, "stop after this many ticks, overriding the scene (0 = unlimited)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

// logPresenter reports each frame at debug level.
func logPresenter(log *zap.Logger) render.Presenter {
	return render.PresenterFunc(func(f render.Frame) error {
		if ce := log.Check(zap.DebugLevel, "frame"); ce != nil {
			ce.Write(
				zap.Uint64("seq", f.Seq),
				zap.Int("commands", len(f.Commands)),
				zap.Int("textures", len(f.Textures)))
		}
		return nil
	})
}

func serveMetrics(log *zap.Logger, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
