package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chilledoj/pongroom/client"
	"github.com/chilledoj/pongroom/config"
	"github.com/chilledoj/pongroom/protocol"
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
	flags := flag.NewFlagSet("pong-client", flag.ExitOnError)
	cfg.RegisterFlags(flags)
	name := flags.String("name", "bot", "label shown in the host logs")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	codec, err := protocol.NewCodec(cfg.Codec)
	if err != nil {
		return err
	}

	slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.LogLevel,
	}))
	slog.SetDefault(slogger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := client.Dial(ctx, cfg.ServerURL, *name)
	if err != nil {
		return err
	}

	var p *client.Participant
	p = client.NewParticipant(conn, client.Options{
		Codec:   codec,
		Slogger: slogger,
		OnMessage: func(env protocol.Envelope) {
			switch env.Type {
			case protocol.TypeReadyToggled, protocol.TypeReadinessSnapshot, protocol.TypeParticipantLeft:
				for _, line := range p.Lobby().Lines() {
					slogger.Info(line)
				}
			case protocol.TypeScoreUpdated:
				scores := p.Scores()
				slogger.Info("score", "left", scores[0], "right", scores[1])
			}
		},
	})

	bot := &client.Bot{P: p, Period: cfg.TickPeriod(), Slogger: slogger}
	err = bot.Run(ctx)
	out, res := p.Outcome()
	slogger.Info("finished", "outcome", out, "winner", res.WinnerID, "reason", res.Reason)
	return err
}
