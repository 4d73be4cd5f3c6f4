// Package bridge connects game servers to the runner.
//
// A game server, or an adapter speaking its protocol, dials the runner over
// websocket and sends a hello frame followed by event frames. Events that
// need an answer carry an id and are answered with a reply frame. Modules
// talk back through command frames.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"
	"github.com/rs/xid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"go.bbrapi.dev/runner/pkg/internal/addrquota"
	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/server"
	"go.bbrapi.dev/runner/pkg/version"
)

// DefaultBind is the address game servers connect to.
const DefaultBind = "0.0.0.0:29294"

// Hosts creates the module host of a game server the first time its
// address connects.
type Hosts interface {
	Host(ctx context.Context, s *Session) (*server.Host, error)
}

// HostsFunc adapts a function to Hosts.
type HostsFunc func(ctx context.Context, s *Session) (*server.Host, error)

func (f HostsFunc) Host(ctx context.Context, s *Session) (*server.Host, error) { return f(ctx, s) }

// Options for New.
type Options struct {
	Bind   string
	Hosts  Hosts
	Logger logr.Logger
	Event  event.Manager
	// HelloTimeout bounds the wait for the hello frame. Defaults to 10s.
	HelloTimeout time.Duration
	// QueueSize is the number of events buffered per server. Defaults to 256.
	QueueSize int
	// ReadLimit is the maximum frame size in bytes. Defaults to 1 MiB.
	ReadLimit int64
	// Quota limits connection attempts per address range. Nil allows all.
	Quota *addrquota.Quota
}

// Bridge accepts game server connections.
type Bridge struct {
	bind         string
	hosts        Hosts
	log          logr.Logger
	event        event.Manager
	helloTimeout time.Duration
	queueSize    int
	readLimit    int64
	quota        *addrquota.Quota

	mu       sync.Mutex
	sessions map[string]*Session
}

// New returns a bridge.
func New(opts Options) *Bridge {
	if opts.Bind == "" {
		opts.Bind = DefaultBind
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Event == nil {
		opts.Event = event.Nop
	}
	if opts.HelloTimeout <= 0 {
		opts.HelloTimeout = 10 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	return &Bridge{
		bind:         opts.Bind,
		hosts:        opts.Hosts,
		log:          opts.Logger,
		event:        opts.Event,
		helloTimeout: opts.HelloTimeout,
		queueSize:    opts.QueueSize,
		readLimit:    opts.ReadLimit,
		quota:        opts.Quota,
		sessions:     map[string]*Session{},
	}
}

// ConnectedEvent is fired when a game server connected.
type ConnectedEvent struct {
	Session     *Session
	Reconnected bool
}

// DisconnectedEvent is fired when a game server connection ended.
type DisconnectedEvent struct {
	Session *Session
	Err     error
}

// Start listens on the bind address until ctx is canceled.
func (b *Bridge) Start(ctx context.Context) error {
	b.log.Info("listening for game servers", "bind", b.bind)
	hs := &http.Server{
		Addr:              b.bind,
		Handler:           otelhttp.NewHandler(b, "bridge"),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		b.closeAll(websocket.StatusGoingAway, "runner shutting down")
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(stopCtx)
	})
	eg.Go(func() error {
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return eg.Wait()
}

// Sessions returns every known game server ordered by address.
func (b *Bridge) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := slices.Sorted(maps.Keys(b.sessions))
	out := make([]*Session, len(keys))
	for i, k := range keys {
		out[i] = b.sessions[k]
	}
	return out
}

func (b *Bridge) closeAll(code websocket.StatusCode, reason string) {
	for _, s := range b.Sessions() {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn != nil {
			_ = conn.Close(code, reason)
		}
	}
}

// ServeHTTP upgrades a game server connection and serves it until it ends.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Server", version.UserAgent())
	if b.quota.Blocked(r.RemoteAddr) {
		b.log.V(1).Info("connection attempts exceed quota", "remote", r.RemoteAddr)
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.log.V(1).Info("rejected bridge connection", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(b.readLimit)
	b.serve(r.Context(), conn, r.RemoteAddr)
}

func (b *Bridge) serve(ctx context.Context, conn *websocket.Conn, remote string) {
	id := xid.New()
	log := b.log.WithValues("conn", id.String(), "remote", remote)

	hello, err := b.hello(ctx, conn, remote)
	if err != nil {
		log.Info("game server did not introduce itself", "error", err)
		_ = conn.Close(websocket.StatusPolicyViolation, "expected hello")
		return
	}
	addr := net.JoinHostPort(hello.IP, strconv.Itoa(int(hello.Port)))
	log = log.WithValues("server", addr)

	s, reconnected, err := b.session(ctx, addr, conn, id, hello)
	if err != nil {
		log.Error(err, "refused game server")
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	host := s.Host()
	log.Info("game server connected", "name", hello.Name, "reconnected", reconnected)
	b.event.Fire(&ConnectedEvent{Session: s, Reconnected: reconnected})

	// Dispatch runs on its own goroutine so that modules can send commands
	// while the reader keeps going.
	dctx := logr.NewContext(context.WithoutCancel(ctx), log)
	queue := make(chan func(), b.queueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for fn := range queue {
			fn()
		}
	}()

	queue <- func() {
		if reconnected {
			host.Reconnected(dctx)
		} else {
			host.Connected(dctx)
		}
	}
	err = b.read(ctx, conn, s, log, func(c module.Callback, p *Payload, replyID uint64) {
		queue <- func() {
			reply := deliver(dctx, host.Dispatcher, c, p)
			if reply == nil || replyID == 0 {
				return
			}
			if err := b.reply(conn, replyID, reply); err != nil {
				log.V(1).Info("failed to send reply", "callback", c.String(), "error", err)
			}
		}
	})
	s.unbind(conn)
	queue <- func() { host.Disconnected(dctx) }
	close(queue)
	<-done

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
		err = nil
	}
	log.Info("game server disconnected", "error", err)
	b.event.Fire(&DisconnectedEvent{Session: s, Err: err})
	_ = conn.CloseNow()
}

func (b *Bridge) hello(ctx context.Context, conn *websocket.Conn, remote string) (*Hello, error) {
	ctx, cancel := context.WithTimeout(ctx, b.helloTimeout)
	defer cancel()
	var f Frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		return nil, err
	}
	if f.Type != TypeHello {
		return nil, fmt.Errorf("first frame is %q", f.Type)
	}
	var h Hello
	if err := json.Unmarshal(f.Data, &h); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	if h.IP == "" {
		host, _, err := net.SplitHostPort(remote)
		if err != nil {
			return nil, fmt.Errorf("hello without ip: %w", err)
		}
		h.IP = host
	}
	if h.Port == 0 {
		return nil, errors.New("hello without port")
	}
	return &h, nil
}

// session returns the session of addr bound to conn, creating it and its
// host on first contact.
func (b *Bridge) session(ctx context.Context, addr string, conn *websocket.Conn, id xid.ID, hello *Hello) (*Session, bool, error) {
	b.mu.Lock()
	s, known := b.sessions[addr]
	if !known {
		s = newSession(addr, b.log)
		b.sessions[addr] = s
	}
	b.mu.Unlock()

	if !s.bind(conn, id, hello) {
		return nil, false, fmt.Errorf("%s is already connected", addr)
	}
	if s.Host() != nil {
		return s, true, nil
	}
	if b.hosts == nil {
		s.unbind(conn)
		return nil, false, errors.New("bridge has no hosts")
	}
	host, err := b.hosts.Host(ctx, s)
	if err != nil {
		s.unbind(conn)
		return nil, false, err
	}
	s.mu.Lock()
	s.host = host
	s.mu.Unlock()
	return s, false, nil
}

// read decodes frames until the connection fails.
func (b *Bridge) read(ctx context.Context, conn *websocket.Conn, s *Session, log logr.Logger, fn func(module.Callback, *Payload, uint64)) error {
	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}
		if f.Type != TypeEvent {
			log.V(1).Info("ignoring frame", "type", f.Type)
			continue
		}
		c, ok := module.CallbackByMethod(f.Name)
		if !ok || !remote(c) {
			log.Info("ignoring unknown event", "name", f.Name)
			continue
		}
		p := new(Payload)
		if len(f.Data) != 0 {
			if err := json.Unmarshal(f.Data, p); err != nil {
				log.Info("ignoring malformed event", "name", f.Name, "error", err)
				continue
			}
		}
		s.observe(c, p)
		fn(c, p, f.ID)
	}
}

func (b *Bridge) reply(conn *websocket.Conn, id uint64, r *Reply) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return write(conn, &Frame{Type: TypeReply, ID: id, Data: data})
}
