package client

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/chilledoj/pongroom/protocol"
	"golang.org/x/sync/errgroup"
)

const trackDeadZone = 0.1

// Track returns the paddle input that moves paddleY towards ballY.
func Track(paddleY, ballY float64) float64 {
	d := ballY - paddleY
	if math.Abs(d) < trackDeadZone {
		return 0
	}
	return max(-1, min(1, d))
}

// Bot plays a participant on its own: it readies up once welcomed and keeps
// its paddle level with the ball.
type Bot struct {
	P      *Participant
	Period time.Duration

	Slogger *slog.Logger
}

// Run plays until the game ends, the link drops or ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.Slogger == nil {
		b.Slogger = slog.Default()
	}
	if b.Period <= 0 {
		b.Period = time.Second / 60
	}
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	g.Go(func() error {
		defer stop()
		return b.P.Run(gctx)
	})
	g.Go(func() error {
		b.play(runCtx)
		return nil
	})
	return g.Wait()
}

func (b *Bot) play(ctx context.Context) {
	sl := b.Slogger.With("func", "bot.play")
	ticker := time.NewTicker(b.Period)
	defer ticker.Stop()
	dt := b.Period.Seconds()
	readied := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if out, _ := b.P.Outcome(); out != Pending {
			sl.Info("game over", "outcome", out, "scores", b.P.Scores())
			return
		}
		if !readied && b.P.ID() != "" {
			if err := b.P.SceneReady(); err != nil {
				sl.Warn("scene ready failed", "err", err)
			}
			if err := b.P.ToggleReady(); err != nil {
				sl.Warn("ready failed", "err", err)
			}
			readied = true
			continue
		}
		slot, ok := b.P.Slot()
		if !ok || !b.P.Started() {
			continue
		}
		paddle, _ := b.P.Position(protocol.PaddleEntity(slot))
		input := 0.0
		if ball, ok := b.P.Position(protocol.BallEntity); ok {
			input = Track(paddle.Y, ball.Y)
		}
		b.P.Tick(dt, input)
	}
}
