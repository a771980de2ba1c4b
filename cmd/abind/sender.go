package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kbirk/abind/internal/example"
	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/rpc"
	"github.com/kbirk/abind/pkg/rpc/tcp"
	"github.com/kbirk/abind/pkg/rpc/unix"
	"github.com/kbirk/abind/pkg/rpc/websocket"
	"github.com/kbirk/abind/pkg/sender"
	"github.com/kbirk/abind/pkg/transport/framed"
	"github.com/kbirk/abind/pkg/transport/grpcbinding"
	"github.com/kbirk/abind/pkg/transport/jsonrpc"
)

func clientTransport() (rpc.ClientTransport, error) {
	switch transport {
	case "tcp":
		return tcp.NewClientTransport(tcp.ClientTransportConfig{
			Host:    host,
			Port:    port,
			NoDelay: true,
		}), nil
	case "unix":
		return unix.NewClientTransport(unix.ClientTransportConfig{
			SocketPath: socket,
		}), nil
	case "websocket":
		return websocket.NewClientTransport(websocket.ClientTransportConfig{
			Host: host,
			Port: port,
		}), nil
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}

// connect returns a sender wired to the chosen transport and a function
// releasing the connection.
func connect(ctx context.Context, logger *log.ConsoleLogger) (*sender.Sender, func(), error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	conf := sender.Config{
		Logger:         logger.WithPrefix("sender"),
		RequestTimeout: 5 * time.Second,
	}

	switch transport {
	case "grpc":
		conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, err
		}
		client := grpcbinding.NewClient(grpcbinding.ClientConfig{
			Conn:   conn,
			Logger: logger.WithPrefix("grpc"),
		})
		conf.Client = client
		s := sender.New(conf)
		listenCtx, cancel := context.WithCancel(ctx)
		grpcbinding.AttachSender(listenCtx, client, s)
		return s, func() {
			cancel()
			conn.Close()
		}, nil

	case "jsonrpc":
		client := jsonrpc.NewClient(jsonrpc.ClientConfig{
			URL:    "http://" + address + "/",
			Logger: logger.WithPrefix("jsonrpc"),
		})
		conf.Client = client
		s := sender.New(conf)
		listenCtx, cancel := context.WithCancel(ctx)
		jsonrpc.AttachSender(listenCtx, client, s)
		return s, cancel, nil
	}

	ct, err := clientTransport()
	if err != nil {
		return nil, nil, err
	}
	client := rpc.NewClient(rpc.ClientConfig{
		Transport: ct,
		Logger:    logger.WithPrefix("rpc"),
	})
	if err := client.Connect(); err != nil {
		return nil, nil, err
	}
	conf.Client = client
	s := sender.New(conf)
	framed.AttachSender(client, s)
	return s, func() {
		client.Close()
	}, nil
}

func step(instr string, action func() error) error {
	fmt.Println(white("-----Start of Example Step-----"))
	fmt.Println(instr)

	start := time.Now()
	if err := action(); err != nil {
		fmt.Printf("%s %v\n", red("Exception caught:"), err)
		return err
	}

	fmt.Printf("Time elapsed: %s\n", time.Since(start))
	fmt.Println(white("-----End of Example Step-----"))
	fmt.Println()
	return nil
}

func runSender(ctx context.Context, logger *log.ConsoleLogger) error {
	s, release, err := connect(ctx, logger)
	if err != nil {
		return err
	}
	defer release()
	defer s.Close()

	if err := example.RegisterProxies(s); err != nil {
		return err
	}

	var obj example.IExampleObject
	received := make(chan struct{}, 1)
	handler := func(contract.Empty) {
		fmt.Println(cyan("obj1 event: NotifyRequested"))
		select {
		case received <- struct{}{}:
		default:
		}
	}
	var handlerID contract.HandlerID

	steps := []struct {
		instr  string
		action func() error
	}{
		{"Sync bindings.", func() error {
			if err := s.SynchronizeBindings(ctx); err != nil {
				return err
			}
			bindings := sender.GetBindingsByType[example.IExampleObject](s)
			fmt.Printf("Found %d IExampleObject\n", len(bindings))
			if len(bindings) == 0 {
				return fmt.Errorf("no IExampleObject bound")
			}
			obj = bindings[0].Proxy
			return nil
		}},
		{"Subscribe to event and wait for one notification.", func() error {
			fmt.Println("Subscribing to NotifyRequested...")
			id, err := obj.NotifyRequested().Add(handler)
			if err != nil {
				return err
			}
			handlerID = id
			select {
			case <-received:
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * interval):
				fmt.Println("No notification yet, moving on.")
			}
			return nil
		}},
		{"Unsubscribe from event.", func() error {
			fmt.Println("Unsubscribing from NotifyRequested...")
			return obj.NotifyRequested().Remove(handlerID)
		}},
		{"Get property value.", func() error {
			value, err := obj.StrProperty()
			if err != nil {
				return err
			}
			if value == "" {
				fmt.Println("Looks like the value is empty. Let's set it!")
			} else {
				fmt.Printf("Value: %s\n", value)
			}
			return nil
		}},
		{"Set property value.", func() error {
			value := "You set a string!"
			if err := obj.SetStrProperty(value); err != nil {
				return err
			}
			fmt.Printf("Value set to: %s\n", value)
			return nil
		}},
		{"Get property value.", func() error {
			value, err := obj.StrProperty()
			if err != nil {
				return err
			}
			fmt.Printf("Look it's the same value you just set: %s\n", value)
			return nil
		}},
		{"Invoke a void return method.", func() error {
			if err := obj.MethodVoidStr("Method invoked!"); err != nil {
				return err
			}
			fmt.Println("You invoked the method!")
			return nil
		}},
		{"Invoke a method returning a string.", func() error {
			result, err := obj.MethodStr()
			if err != nil {
				return err
			}
			fmt.Printf("Result: %s\n", result)
			return nil
		}},
	}

	for _, st := range steps {
		if err := step(st.instr, st.action); err != nil {
			return err
		}
	}

	fmt.Println(green("SUCCESS: ") + "Example complete")
	return nil
}
