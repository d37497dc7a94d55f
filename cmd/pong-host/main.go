package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chilledoj/pongroom/client"
	"github.com/chilledoj/pongroom/config"
	"github.com/chilledoj/pongroom/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	flags := flag.NewFlagSet("pong-host", flag.ExitOnError)
	cfg.RegisterFlags(flags)
	localBot := flags.Bool("local-bot", false, "let the host process play one of the paddles")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	txtHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.LogLevel,
	})
	slogger := slog.New(txtHandler)
	slog.SetDefault(slogger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	host, err := server.NewHost(ctx, cfg, slogger)
	if err != nil {
		return err
	}
	s := &http.Server{
		Addr:    cfg.Addr,
		Handler: host.Routes(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		host.Start()
		return nil
	})
	g.Go(func() error {
		slogger.Info("listening", "addr", cfg.Addr, "codec", cfg.Codec, "tickRate", cfg.TickRate)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if *localBot {
		g.Go(func() error {
			ls, err := host.JoinLocal()
			if err != nil {
				return err
			}
			p := client.NewParticipant(client.NewLocalConn(ls), client.Options{Codec: host.Codec(), Slogger: slogger})
			bot := &client.Bot{P: p, Period: cfg.TickPeriod(), Slogger: slogger}
			return bot.Run(gctx)
		})
	}
	g.Go(func() error {
		// One session per process: stop serving once it is over.
		select {
		case <-gctx.Done():
		case <-host.Context().Done():
		}
		slogger.Info("shutting down rooms")
		host.Stop()
		slogger.Info("shutting down server")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return s.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slogger.Info("shutdown complete")
	return err
}
