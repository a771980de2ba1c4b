package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbirk/abind/internal/example"
	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/recipient"
	"github.com/kbirk/abind/pkg/rpc"
	"github.com/kbirk/abind/pkg/rpc/tcp"
	"github.com/kbirk/abind/pkg/rpc/unix"
	"github.com/kbirk/abind/pkg/rpc/websocket"
	"github.com/kbirk/abind/pkg/transport/framed"
	"github.com/kbirk/abind/pkg/transport/grpcbinding"
	"github.com/kbirk/abind/pkg/transport/jsonrpc"
)

func serverTransport() (rpc.ServerTransport, error) {
	switch transport {
	case "tcp":
		return tcp.NewServerTransport(tcp.ServerTransportConfig{
			Host:    host,
			Port:    port,
			NoDelay: true,
		}), nil
	case "unix":
		return unix.NewServerTransport(unix.ServerTransportConfig{
			SocketPath: socket,
		}), nil
	case "websocket":
		return websocket.NewServerTransport(websocket.ServerTransportConfig{
			Host: host,
			Port: port,
		}), nil
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}

func runRecipient(ctx context.Context, logger *log.ConsoleLogger) error {
	r := recipient.New(recipient.Config{
		Logger: logger.WithPrefix("recipient"),
	})
	defer r.Close()

	obj := example.NewExampleObject(logger.WithPrefix(example.ObjectID))
	if err := r.Register(example.ObjectID, example.ExampleObjectContract, obj); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serve(gctx, r, logger)
	})

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				obj.OnNotifyRequested()
			}
		}
	})

	address := net.JoinHostPort(host, strconv.Itoa(port))
	if transport == "unix" {
		address = socket
	}
	fmt.Printf("%s %s on %s\n", green("Serving"), white(example.ObjectID), cyan(transport+"://"+address))

	return g.Wait()
}

func serve(ctx context.Context, r *recipient.Recipient, logger *log.ConsoleLogger) error {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	switch transport {
	case "grpc":
		lis, err := net.Listen("tcp", address)
		if err != nil {
			return err
		}
		server := grpcbinding.NewServer(grpcbinding.ServerConfig{
			Recipient: r,
			Logger:    logger.WithPrefix("grpc"),
		})
		return server.Serve(ctx, lis)

	case "jsonrpc":
		service := jsonrpc.NewBindingService(jsonrpc.ServerConfig{
			Recipient: r,
			Logger:    logger.WithPrefix("jsonrpc"),
		})
		defer service.Close()

		server := &http.Server{
			Addr:    address,
			Handler: jsonrpc.NewHandler(service),
		}
		go func() {
			<-ctx.Done()
			server.Close()
		}()
		err := server.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}

	st, err := serverTransport()
	if err != nil {
		return err
	}
	server := rpc.NewServer(rpc.ServerConfig{
		Transport: st,
		Logger:    logger.WithPrefix("rpc"),
	})
	server.RegisterHandler(framed.NewRecipientHandler(r, logger.WithPrefix("rpc")))

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}
