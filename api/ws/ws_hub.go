package ws

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/spectra-gallery/spectra-playground/cache"
	"github.com/spectra-gallery/spectra-playground/logging"
)

type subscription struct {
	client     *Client
	resourceId string
}

type broadcast struct {
	resourceId string
	message    []byte
}

// Hub maintains the set of active clients and fans resource updates out to
// the clients watching each resource. All maps are owned by Run.
type Hub struct {
	playgroundCache cache.PlaygroundCache
	log             logging.Logger

	OpenCh        chan *Client
	CloseCh       chan *Client
	SubscribeCh   chan subscription
	UnsubscribeCh chan subscription
	broadcastCh   chan broadcast

	userToClients              map[string]map[*Client]struct{}
	resourceToClients          map[string]map[*Client]struct{}
	resourceToSubscriberCancel map[string]context.CancelFunc
}

func NewHub(playgroundCache cache.PlaygroundCache, log logging.Logger) *Hub {
	return &Hub{
		playgroundCache:            playgroundCache,
		log:                        log.With("component", "ws-hub"),
		OpenCh:                     make(chan *Client, 256),
		CloseCh:                    make(chan *Client, 256),
		SubscribeCh:                make(chan subscription, 1024),
		UnsubscribeCh:              make(chan subscription, 1024),
		broadcastCh:                make(chan broadcast, 1024),
		userToClients:              make(map[string]map[*Client]struct{}),
		resourceToClients:          make(map[string]map[*Client]struct{}),
		resourceToSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

const (
	maxConnectionsPerUser         = 3
	maxSubscriptionsPerConnection = 50
)

// Run serves hub events until shutdownCtx ends.
func (h *Hub) Run(shutdownCtx context.Context) {
	defer func() {
		for _, cancel := range h.resourceToSubscriberCancel {
			cancel()
		}
	}()

	for {
		select {
		case <-shutdownCtx.Done():
			return

		case client := <-h.OpenCh:
			h.open(shutdownCtx, client)

		case client := <-h.CloseCh:
			h.close(client)

		case sub := <-h.SubscribeCh:
			h.subscribe(shutdownCtx, sub)

		case unsub := <-h.UnsubscribeCh:
			delete(unsub.client.subscribedResources, unsub.resourceId)
			h.removeSubscriber(unsub.resourceId, unsub.client)

		case b := <-h.broadcastCh:
			for client := range h.resourceToClients[b.resourceId] {
				select {
				case client.Send <- b.message:
				default:
					h.log.Warn(shutdownCtx, "dropping update for slow client", "resourceId", b.resourceId)
				}
			}
		}
	}
}

// close drops every registration of client. Open, subscribe and close arrive
// on separate channels, so events for this client may still be queued behind
// the close; the closed flag makes them no-ops.
func (h *Hub) close(client *Client) {
	client.closed = true
	for resourceId := range client.subscribedResources {
		h.removeSubscriber(resourceId, client)
	}
	clear(client.subscribedResources)
	if client.identity != nil {
		delete(h.userToClients[client.identity.Id], client)
		if len(h.userToClients[client.identity.Id]) == 0 {
			delete(h.userToClients, client.identity.Id)
		}
	}
}

func (h *Hub) open(ctx context.Context, client *Client) {
	if client.identity == nil || client.closed {
		return
	}
	userId := client.identity.Id
	if _, ok := h.userToClients[userId]; !ok {
		h.userToClients[userId] = make(map[*Client]struct{})
	}
	if len(h.userToClients[userId]) >= maxConnectionsPerUser {
		h.log.Info(ctx, "user reached max connections", "userId", userId, "max", maxConnectionsPerUser)
		client.rejected = true
		client.kick(websocket.ClosePolicyViolation, "too many connections")
		return
	}
	h.userToClients[userId][client] = struct{}{}
}

func (h *Hub) subscribe(ctx context.Context, sub subscription) {
	if sub.client.rejected || sub.client.closed {
		return
	}
	if _, ok := sub.client.subscribedResources[sub.resourceId]; ok {
		return
	}
	if len(sub.client.subscribedResources) >= maxSubscriptionsPerConnection {
		h.log.Info(ctx, "connection reached max subscriptions", "max", maxSubscriptionsPerConnection)
		return
	}

	if h.resourceToClients[sub.resourceId] == nil {
		subCtx, cancel := context.WithCancel(ctx)
		resourceId := sub.resourceId
		channel := cache.ResourceChannel(resourceId)

		err := h.playgroundCache.Subscribe(subCtx, channel, func(message []byte) {
			select {
			case h.broadcastCh <- broadcast{resourceId: resourceId, message: message}:
			case <-subCtx.Done():
			}
		})
		if err != nil {
			cancel()
			h.log.Error(ctx, "subscribe failed", "channel", channel, "error", err)
			return
		}

		h.resourceToClients[resourceId] = make(map[*Client]struct{})
		h.resourceToSubscriberCancel[resourceId] = cancel
	}
	h.resourceToClients[sub.resourceId][sub.client] = struct{}{}
	sub.client.subscribedResources[sub.resourceId] = struct{}{}
}

func (h *Hub) removeSubscriber(resourceId string, client *Client) {
	delete(h.resourceToClients[resourceId], client)
	if len(h.resourceToClients[resourceId]) == 0 {
		if cancel, ok := h.resourceToSubscriberCancel[resourceId]; ok {
			cancel()
			delete(h.resourceToSubscriberCancel, resourceId)
		}
		delete(h.resourceToClients, resourceId)
	}
}
