package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/kbirk/abind/pkg/log"
)

var (
	mode      string
	transport string
	host      string
	port      int
	socket    string
	logLevel  string
	interval  time.Duration
)

var (
	red   = color.New(color.FgRed, color.Bold).SprintFunc()
	green = color.New(color.FgGreen, color.Bold).SprintFunc()
	cyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	white = color.New(color.FgWhite, color.Bold).SprintFunc()
)

func fail(msg string, err error) {
	os.Stderr.WriteString(red("ERROR: ") + fmt.Sprintf("%s: %v\n", msg, err))
	os.Exit(1)
}

func main() {

	flag.StringVar(&mode, "mode", "recipient", "recipient or sender")
	flag.StringVar(&transport, "transport", "tcp", "tcp, unix, websocket, grpc or jsonrpc")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to listen on or connect to")
	flag.IntVar(&port, "port", 6789, "Port to listen on or connect to")
	flag.StringVar(&socket, "socket", "/tmp/abind.sock", "Socket path for the unix transport")
	flag.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flag.DurationVar(&interval, "interval", 3*time.Second, "How often the recipient raises NotifyRequested")

	flag.Parse()

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		fail("Invalid `--log-level`", err)
	}
	logger := log.NewConsoleLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "recipient":
		err = runRecipient(ctx, logger)
	case "sender":
		err = runSender(ctx, logger)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		fail("Failed to run "+mode, err)
	}
}
