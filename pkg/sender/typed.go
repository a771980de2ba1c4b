package sender

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kbirk/abind/pkg/contract"
)

func Get[V any](ctx context.Context, p *Proxy, propertyID string) (V, error) {
	var v V
	err := p.GetValue(ctx, propertyID, &v)
	return v, err
}

func Set[V any](ctx context.Context, p *Proxy, propertyID string, value V) error {
	return p.SetValue(ctx, propertyID, value)
}

func Call[R any](ctx context.Context, p *Proxy, methodID string, args ...any) (R, error) {
	var r R
	err := p.Invoke(ctx, methodID, &r, args...)
	return r, err
}

func CallVoid(ctx context.Context, p *Proxy, methodID string, args ...any) error {
	return p.Invoke(ctx, methodID, nil, args...)
}

// ProxyEvent returns an event that mirrors eventID of the remote object.
// Adding a handler subscribes remotely, removing one unsubscribes. The event
// is cleared when the proxy is disposed.
func ProxyEvent[A any](p *Proxy, eventID string) *contract.Event[A] {
	ev := contract.NewEvent[A]()
	ev.SetHooks(contract.EventHooks{
		OnAdd: func() error {
			return p.Subscribe(context.Background(), eventID)
		},
		OnRemove: func() error {
			return p.Unsubscribe(context.Background(), eventID)
		},
	})

	p.attach(eventID, func(raw json.RawMessage) {
		var args A
		if err := p.sender.codec.Decode(raw, &args); err != nil {
			p.sender.logError(fmt.Sprintf("Failed to decode %s args from %s: %s", eventID, p.objectID, err.Error()))
			return
		}
		ev.Raise(args)
	})
	p.onDispose(ev.Clear)
	return ev
}
