// Package client is the embeddable synchronization client for one duffel
// list. It keeps a local bucket index live against the server: reads are
// answered locally, item mutations apply optimistically before the server
// confirms, and a websocket subscription streams other actors' changes in.
// The index converges to server state regardless of event delivery order;
// on reconnect or corruption it rebuilds from a fresh snapshot.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"duffel/pkg/event"
	"duffel/pkg/fault"
	"duffel/pkg/model"
	"duffel/pkg/view"
)

// Config carries everything needed to open a list.
type Config struct {
	// BaseURL is the server root, for example "https://duffel.example.com".
	BaseURL string
	// Token is the bearer token minted for ActorID.
	Token   string
	ListID  model.ListID
	ActorID model.ActorID

	// HTTPClient overrides the transport for REST calls. Optional.
	HTTPClient *http.Client
	// Storage replaces the REST transport entirely. Optional; when set,
	// BaseURL is only used for the websocket endpoint.
	Storage Storage
	// Logger receives connection and synchronization logs. Defaults to
	// slog.Default.
	Logger *slog.Logger
	// CoalesceWindow batches coarse invalidations before refetching.
	// Defaults to 250ms.
	CoalesceWindow time.Duration
	// MutationTimeout bounds each optimistic mutation's server call.
	// Defaults to 10s.
	MutationTimeout time.Duration
}

// Client is a live replica of one list. All methods are safe for
// concurrent use.
type Client struct {
	log       *slog.Logger
	listID    model.ListID
	storage   Storage
	engine    *engine
	coord     *coordinator
	scheduler *scheduler
	conn      *conn

	closeOnce sync.Once
}

// New wires a client without contacting the server. Start performs the
// first load and opens the live connection.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fault.New(fault.CodeValidation, "base url is required")
	}
	if cfg.Token == "" {
		return nil, fault.New(fault.CodeValidation, "token is required")
	}
	if cfg.ListID == (model.ListID{}) {
		return nil, fault.New(fault.CodeValidation, "list id is required")
	}
	if cfg.ActorID == (model.ActorID{}) {
		return nil, fault.New(fault.CodeValidation, "actor id is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	wsURL, err := wsEndpoint(cfg.BaseURL, cfg.ListID)
	if err != nil {
		return nil, err
	}

	storage := cfg.Storage
	if storage == nil {
		storage = NewHTTPStorage(cfg.BaseURL, cfg.Token, cfg.HTTPClient)
	}
	eng := newEngine(log, cfg.ListID)
	sched := newScheduler(log, eng, storage, cfg.ListID, cfg.CoalesceWindow)
	eng.onCorrupt = sched.Resync
	coord := newCoordinator(log, eng, storage, cfg.ListID, cfg.MutationTimeout)

	c := &Client{
		log:       log,
		listID:    cfg.ListID,
		storage:   storage,
		engine:    eng,
		coord:     coord,
		scheduler: sched,
	}
	c.conn = newConn(log, wsURL, cfg.Token, cfg.ListID, cfg.ActorID, sched, func(w event.Welcome) {
		// Mutations sent from here on carry the connection id, so the
		// server does not echo our own changes back. The resync closes
		// whatever gap opened while we were offline.
		storage.SetOrigin(w.ConnID)
		sched.Resync()
	})
	return c, nil
}

func wsEndpoint(baseURL string, listID model.ListID) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fault.Wrap(fault.CodeValidation, "parse base url", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fault.Newf(fault.CodeValidation, "unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/lists/" + listID.String() + "/ws"
	return u.String(), nil
}

// Start loads the list and opens the live connection. It returns once the
// local index holds a complete snapshot; the websocket connects in the
// background and retries on its own.
func (c *Client) Start(ctx context.Context) error {
	if err := c.scheduler.initialLoad(ctx); err != nil {
		return err
	}
	c.conn.start()
	return nil
}

// Close disconnects and waits for in-flight mutations to resolve. The
// client cannot be restarted.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.scheduler.close()
		c.coord.close()
		c.engine.close()
	})
}

// Updates signals after bursts of view changes. Consumers reread the views
// they render; the channel never blocks the client.
func (c *Client) Updates() <-chan struct{} { return c.engine.Updates() }

// View returns the current state of one bucket: a container's members or,
// for the null ref, the kind's unassigned bucket.
func (c *Client) View(kind model.ContainerKind, ref model.Ref) view.View {
	return c.engine.View(kind, ref)
}

// Item returns a copy of one item.
func (c *Client) Item(id model.ItemID) (model.Item, bool) { return c.engine.Item(id) }

// Items returns copies of all items ordered by (name, id).
func (c *Client) Items() []model.Item { return c.engine.Items() }

// Len returns the number of items in the local index.
func (c *Client) Len() int { return c.engine.Len() }

// Resync schedules a full rebuild from a fresh snapshot.
func (c *Client) Resync() { c.scheduler.Resync() }

// CreateItem shows the item immediately and confirms it with the server in
// the background.
func (c *Client) CreateItem(ctx context.Context, draft ItemDraft) *Mutation {
	return c.coord.CreateItem(ctx, draft)
}

// UpdateItem applies the patch locally first, then reconciles with the
// server's answer or rolls back.
func (c *Client) UpdateItem(ctx context.Context, id model.ItemID, patch model.Patch) *Mutation {
	return c.coord.UpdateItem(ctx, id, patch)
}

// DeleteItem removes the item locally first.
func (c *Client) DeleteItem(ctx context.Context, id model.ItemID) *Mutation {
	return c.coord.DeleteItem(ctx, id)
}

// BulkUpdateItems patches many items at once. Rejected items roll back
// individually; the mutation's Result carries the split.
func (c *Client) BulkUpdateItems(ctx context.Context, ids []model.ItemID, patch model.Patch) *Mutation {
	return c.coord.BulkUpdateItems(ctx, ids, patch)
}

// Containers lists the list's containers from the server. The local index
// tracks items only; container metadata is read through.
func (c *Client) Containers(ctx context.Context) ([]model.Container, error) {
	return c.storage.Containers(ctx, c.listID)
}

// CreateContainer adds a container. Containers mutate without optimism:
// membership changes arrive as item events.
func (c *Client) CreateContainer(ctx context.Context, kind model.ContainerKind, name string) (model.Container, error) {
	return c.storage.CreateContainer(ctx, c.listID, kind, name)
}

// RenameContainer renames a container.
func (c *Client) RenameContainer(ctx context.Context, id model.ContainerID, name string) (model.Container, error) {
	return c.storage.RenameContainer(ctx, c.listID, id, name)
}

// DeleteContainer removes a container; its items detach into the kind's
// unassigned bucket. Other subscribers learn that from the event stream,
// but our own events are not echoed back, so the local index refetches.
func (c *Client) DeleteContainer(ctx context.Context, id model.ContainerID) error {
	if err := c.storage.DeleteContainer(ctx, c.listID, id); err != nil {
		return err
	}
	c.scheduler.markAll()
	return nil
}
