package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbocsi/simbridge/engine"
	"github.com/mbocsi/simbridge/proto"
)

func main() {
	pubAddr := flag.String("pub", engine.DefaultPubAddr, "telemetry publisher bind address")
	cmdAddr := flag.String("cmd", engine.DefaultCmdAddr, "command socket bind address")
	tick := flag.Duration("tick", engine.DefaultTickInterval, "simulation tick interval")
	advertise := flag.Bool("advertise", false, "announce the sockets over mDNS")
	run := flag.Bool("run", false, "start with the scheduler running")
	flag.Parse()

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stub := engine.NewStub(engine.Options{
		PubAddr:      *pubAddr,
		CmdAddr:      *cmdAddr,
		TickInterval: *tick,
		Advertise:    *advertise,
	})
	if err := stub.Start(ctx); err != nil {
		slog.Error("Error starting engine stub", "error", err)
		os.Exit(1)
	}
	if *run {
		stub.Handle(proto.Run())
	}

	<-ctx.Done()
	if err := stub.Shutdown(); err != nil {
		slog.Warn("Engine stub shutdown failed", "error", err)
	}
}
