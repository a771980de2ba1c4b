// Package framed carries binding messages over the pkg/rpc runtime. The
// recipient side answers requests through an rpc.Server and pushes event
// notifications to the peer that subscribed; the sender side feeds the
// notifications received by an rpc.Client back into its Sender.
package framed

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/message"
	"github.com/kbirk/abind/pkg/recipient"
	"github.com/kbirk/abind/pkg/rpc"
	"github.com/kbirk/abind/pkg/sender"
)

type peerCallback struct {
	peer   rpc.Peer
	logger log.Logger
}

func (c *peerCallback) Callback(n *message.EventNotification) {
	data, err := message.EncodeNotification(n)
	if err != nil {
		c.logError(fmt.Sprintf("Failed to encode %s notification: %s", n.EventID, err.Error()))
		return
	}
	if err := c.peer.Notify(data); err != nil {
		c.logError(fmt.Sprintf("Failed to notify peer %d: %s", c.peer.ID(), err.Error()))
	}
}

func (c *peerCallback) logError(msg string) {
	if c.logger != nil {
		c.logger.Error(msg)
	}
}

// RecipientHandler implements rpc.RequestHandler on top of a Recipient.
type RecipientHandler struct {
	recipient *recipient.Recipient
	logger    log.Logger
	mu        *sync.Mutex
	callbacks map[uint64]*peerCallback
}

func NewRecipientHandler(r *recipient.Recipient, logger log.Logger) *RecipientHandler {
	return &RecipientHandler{
		recipient: r,
		logger:    logger,
		mu:        &sync.Mutex{},
		callbacks: make(map[uint64]*peerCallback),
	}
}

func (h *RecipientHandler) callback(peer rpc.Peer) *peerCallback {
	h.mu.Lock()
	defer h.mu.Unlock()

	cb, ok := h.callbacks[peer.ID()]
	if !ok {
		cb = &peerCallback{
			peer:   peer,
			logger: h.logger,
		}
		h.callbacks[peer.ID()] = cb
	}
	return cb
}

func (h *RecipientHandler) HandleRequest(ctx context.Context, peer rpc.Peer, payload []byte) ([]byte, error) {
	return h.recipient.Request(ctx, payload, h.callback(peer))
}

// PeerClosed removes the peer's subscriptions from every event.
func (h *RecipientHandler) PeerClosed(peer rpc.Peer) {
	h.mu.Lock()
	cb, ok := h.callbacks[peer.ID()]
	delete(h.callbacks, peer.ID())
	h.mu.Unlock()

	if ok {
		h.recipient.DropCallback(cb)
	}
}

// AttachSender routes the client's notifications into s. The client itself
// satisfies sender.Client.
func AttachSender(client *rpc.Client, s *sender.Sender) {
	client.OnNotification(s.HandleNotification)
}

var _ sender.Client = (*rpc.Client)(nil)
