package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mbocsi/simbridge/client"
	"github.com/mbocsi/simbridge/proto"
)

func (b *Bridge) Run(ctx context.Context) error  { return b.control(ctx, proto.Run()) }
func (b *Bridge) Hold(ctx context.Context) error { return b.control(ctx, proto.Hold()) }
func (b *Bridge) Step(ctx context.Context) error { return b.control(ctx, proto.Step()) }

// Toggle holds a running simulation and runs a held one, judged by the last
// STATUS message received.
func (b *Bridge) Toggle(ctx context.Context) error {
	if b.Running() {
		return b.Hold(ctx)
	}
	return b.Run(ctx)
}

func (b *Bridge) Progress(ctx context.Context, millis int64) error {
	return b.control(ctx, proto.Progress(millis))
}

func (b *Bridge) SetRate(ctx context.Context, scale float64) error {
	return b.control(ctx, proto.Rate(scale))
}

func (b *Bridge) RequestModelTree(ctx context.Context) error {
	return b.execute(ctx, proto.ModelTreeRequest())
}

// VerifyStatus asks the engine to publish its status. The reply itself is
// discarded; the STATUS topic carries the answer.
func (b *Bridge) VerifyStatus(ctx context.Context) error {
	return b.execute(ctx, proto.Status())
}

// Do routes any command from the vocabulary through the matching workflow.
func (b *Bridge) Do(ctx context.Context, cmd proto.Command) error {
	switch cmd.Name {
	case proto.CommandStatus:
		return b.VerifyStatus(ctx)
	case proto.CommandModelTree:
		return b.RequestModelTree(ctx)
	default:
		return b.control(ctx, cmd)
	}
}

// control sends a scheduler command and then re-requests status whatever the
// outcome, so the displayed state resynchronizes.
func (b *Bridge) control(ctx context.Context, cmd proto.Command) error {
	err := b.execute(ctx, cmd)
	_ = b.VerifyStatus(ctx)
	return err
}

func (b *Bridge) execute(ctx context.Context, cmd proto.Command) error {
	_, err := b.commander.Send(ctx, cmd)
	b.report(cmd, err)
	return err
}

// report emits the log line, event and result signal for one command attempt.
func (b *Bridge) report(cmd proto.Command, err error) {
	if err == nil {
		slog.Info("Command sent", "command", cmd.Name)
		b.presenter.OnEvent(LevelInfo, fmt.Sprintf("%s command sent", describe(cmd)))
		b.presenter.OnCommandResult(cmd.Name, true)
		return
	}

	if client.IsTimeout(err) {
		slog.Warn("Command timed out", "command", cmd.Name, "error", err)
		b.presenter.OnEvent(LevelWarning, fmt.Sprintf("%s command timed out", describe(cmd)))
	} else {
		slog.Error("Command failed", "command", cmd.Name, "error", err)
		b.presenter.OnEvent(LevelError, fmt.Sprintf("%s command failed: %v", describe(cmd), err))
	}
	b.presenter.OnCommandResult(cmd.Name, false)
}

func describe(cmd proto.Command) string {
	switch {
	case cmd.Name == proto.CommandProgress && cmd.Millis != nil:
		return fmt.Sprintf("%s %dms", cmd.Name, *cmd.Millis)
	case cmd.Name == proto.CommandRate && cmd.Rate != nil:
		return fmt.Sprintf("%s x%g", cmd.Name, *cmd.Rate)
	default:
		return string(cmd.Name)
	}
}
