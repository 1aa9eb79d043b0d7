package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/config"
	"github.com/jonwraymond/feedbackops/httpapi"
	"github.com/jonwraymond/feedbackops/jobs"
	"github.com/jonwraymond/feedbackops/observe"
)

const shutdownTimeout = 15 * time.Second

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "feedbackd",
		Usage: "cached, deduplicated AI feedback",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error (overrides FEEDBACK_LOG_LEVEL)"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			workerCommand(),
			enqueueCommand(),
			keyCommand(),
		},
	}
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("listen") {
		cfg.Listen = cmd.String("listen")
	}
	return cfg, cfg.Validate()
}

func tagFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "tag",
		Aliases:  []string{"t"},
		Usage:    "feedback category",
		Required: true,
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "listen address (overrides FEEDBACK_LISTEN)"},
			&cli.BoolFlag{Name: "warm", Usage: "enable POST /v1/warm via the job queue"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			rt, err := newServices(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer closeServices(rt)

			mw, err := observe.MiddlewareFromObserver(rt.obs)
			if err != nil {
				return err
			}
			opts := httpapi.Options{
				Coordinator: rt.coordinator,
				Stats:       rt.telemetry,
				Cache:       rt.mem,
				Health:      rt.health(),
				Metrics:     rt.metricsHandler(),
				Middleware:  mw,
				Logger:      rt.logger,
			}
			if cmd.Bool("warm") {
				enq := jobs.NewEnqueuer(asynq.NewClient(rt.redisClientOpt()), rt.coordinator, jobs.EnqueueOptions{
					Queue:   cfg.Jobs.Queue,
					Timeout: cfg.Provider.CallTimeout,
				}, rt.logger)
				defer enq.Close()
				opts.Warmer = enq
			}

			api, err := httpapi.New(opts)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              cfg.Listen,
				Handler:           api,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := rt.mem.Run(gctx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				rt.logger.Info(gctx, "listening", observe.F("addr", cfg.Listen))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			return g.Wait()
		},
	}
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "process cache warming jobs",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newServices(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer closeServices(rt)

			srv := asynq.NewServer(rt.redisClientOpt(), jobs.ServerConfig(cfg.Jobs.Concurrency, cfg.Jobs.Queue, rt.logger))
			mux := jobs.NewServeMux(jobs.NewHandler(rt.coordinator, rt.logger))
			if err := srv.Start(mux); err != nil {
				return fmt.Errorf("worker: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := rt.mem.Run(gctx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			<-gctx.Done()
			srv.Shutdown()
			return g.Wait()
		},
	}
}

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:      "enqueue",
		Usage:     "queue files for cache warming",
		ArgsUsage: "FILE...",
		Flags:     []cli.Flag{tagFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return errors.New("enqueue: at least one file is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newServices(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer closeServices(rt)

			enq := jobs.NewEnqueuer(asynq.NewClient(rt.redisClientOpt()), cache.NewDefaultHasher(), jobs.EnqueueOptions{
				Queue:   cfg.Jobs.Queue,
				Timeout: cfg.Provider.CallTimeout,
			}, rt.logger)
			defer enq.Close()

			for _, path := range cmd.Args().Slice() {
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				queued, err := enq.Warm(ctx, cmd.String("tag"), content)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				state := "queued"
				if !queued {
					state = "already pending"
				}
				fmt.Fprintf(cmd.Root().Writer, "%s\t%s\n", path, state)
			}
			return nil
		},
	}
}

func keyCommand() *cli.Command {
	return &cli.Command{
		Name:      "key",
		Usage:     "print the cache key for content (stdin when no file is given)",
		ArgsUsage: "[FILE...]",
		Flags:     []cli.Flag{tagFlag()},
		Action: func(_ context.Context, cmd *cli.Command) error {
			hasher := cache.NewDefaultHasher()
			tag := cmd.String("tag")
			out := cmd.Root().Writer

			if cmd.NArg() == 0 {
				content, err := io.ReadAll(cmd.Root().Reader)
				if err != nil {
					return err
				}
				key, err := hasher.Key(tag, content)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, key)
				return nil
			}

			for _, path := range cmd.Args().Slice() {
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				key, err := hasher.Key(tag, content)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\n", key, path)
			}
			return nil
		},
	}
}

func closeServices(rt *services) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.close(ctx); err != nil {
		rt.logger.Warn(ctx, "shutdown", observe.F("error", err))
	}
}
