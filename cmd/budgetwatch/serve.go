package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"budgetwatch/internal/infrastructure/postgres/listener"
	httphandlers "budgetwatch/internal/interfaces/http"
	"budgetwatch/internal/interfaces/scheduler"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the daily scheduler",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	// New links get their accounts right away instead of at the next run
	linkListener := listener.NewLinkListener(cfg.Database.ConnectionString(), func(ctx context.Context, event listener.LinkCreated) error {
		link, err := deps.Links.GetLink(ctx, event.LinkID)
		if err != nil {
			return err
		}
		_, err = deps.AccountSync.PopulateLink(ctx, link)
		return err
	})
	linkListener.Start(ctx)
	defer linkListener.Stop()

	var cron *scheduler.Cron
	if cfg.Scheduler.Enabled {
		cron, err = scheduler.NewCron(deps.Orchestrator, cfg.Scheduler.Schedule, cfg.Scheduler.RunOnStartup)
		if err != nil {
			return err
		}
		cron.Start()
	} else {
		log.Println("Scheduler is disabled")
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      httphandlers.NewRouter(deps.Handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("HTTP server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if cron != nil {
			if err := cron.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("Server stopped")
	return nil
}
