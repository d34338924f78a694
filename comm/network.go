package comm

import (
	"context"
	"net"
	"net/rpc"
	"os"
	"sync"
	"time"

	"github.com/convox/logger"
	"github.com/pkg/errors"
)

const (
	dialRetries  = 50
	dialInterval = 100 * time.Millisecond

	// how long Close waits for owed replies to reach their callers
	lingerTimeout = 5 * time.Second
)

// Network is a group member that runs in its own process. It serves a
// Mailbox over net/rpc and dials peers lazily the first time it sends to or
// receives from them.
type Network struct {
	rank  int
	hosts *Hostfile
	log   *logger.Logger

	box      *Mailbox
	server   *rpc.Server
	listener net.Listener
	shutdown chan struct{}
	owed     replies

	mu     sync.Mutex
	peers  map[int]*peer
	conns  []net.Conn
	closed bool
}

// peer is the dialed side of the link to another rank. gone is closed, with
// err set, once that rank closes its mailbox or its connection breaks.
type peer struct {
	client *rpc.Client
	gone   chan struct{}
	err    error
}

// Listen opens the TCP listener a rank serves its mailbox on.
func Listen(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	return l, nil
}

// NewNetwork joins the group described by hosts as the given rank. When l is
// nil the rank listens on its own hostfile address.
func NewNetwork(rank int, hosts *Hostfile, l net.Listener, log *logger.Logger) (*Network, error) {
	if err := hosts.Validate(); err != nil {
		return nil, err
	}
	if rank < 0 || rank >= hosts.Size() {
		return nil, errors.Errorf("rank %d out of range [0, %d)", rank, hosts.Size())
	}
	if l == nil {
		var err error
		if l, err = Listen(hosts.Ranks[rank]); err != nil {
			return nil, err
		}
	}
	if log == nil {
		log = logger.NewWriter("ns=comm", os.Stderr)
	}

	n := &Network{
		rank:     rank,
		hosts:    hosts,
		log:      log.Namespace("rank=%d", rank),
		box:      newMailbox(hosts.Job),
		server:   rpc.NewServer(),
		listener: l,
		shutdown: make(chan struct{}),
		peers:    make(map[int]*peer),
	}
	if err := n.server.RegisterName("Mailbox", n.box); err != nil {
		l.Close()
		return nil, errors.WithStack(err)
	}
	n.startRPCServer()
	return n, nil
}

// Addr is the address the mailbox listens on.
func (n *Network) Addr() net.Addr { return n.listener.Addr() }

func (n *Network) Rank() int { return n.rank }

func (n *Network) Size() int { return n.hosts.Size() }

func (n *Network) Host() string {
	host, _, err := net.SplitHostPort(n.hosts.Ranks[n.rank])
	if err != nil || host == "" {
		if h, err := os.Hostname(); err == nil {
			return h
		}
		return n.hosts.Ranks[n.rank]
	}
	return host
}

// Send delivers buf to dest through its mailbox. It returns once the
// destination rank has taken the message.
func (n *Network) Send(ctx context.Context, buf []int64, dest, tag int) error {
	if err := checkPeer(n, dest); err != nil {
		return err
	}
	p, err := n.peer(ctx, dest)
	if err != nil {
		return err
	}
	args := &DeliverArgs{Job: n.hosts.Job, Source: n.rank, Tag: tag, Data: buf}
	call := p.client.Go("Mailbox.Deliver", args, new(struct{}), make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		return errors.Wrapf(call.Error, "send to %d", dest)
	case <-n.shutdown:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv waits for a message from source on tag. It fails with ErrPeerGone
// when source closes or dies first.
func (n *Network) Recv(ctx context.Context, buf []int64, source, tag int) error {
	if err := checkPeer(n, source); err != nil {
		return err
	}
	p, err := n.peer(ctx, source)
	if err != nil {
		return err
	}
	select {
	case msg := <-n.box.slot(source, tag):
		if len(msg) != len(buf) {
			return lengthError(len(msg), len(buf))
		}
		copy(buf, msg)
		return nil
	case <-p.gone:
		return p.err
	case <-n.shutdown:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the mailbox, waits a bounded time for the replies this rank
// still owes to be written, then drops every connection.
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.shutdown)
	n.box.close()
	err := n.listener.Close()
	n.mu.Unlock()

	log := n.log.At("close")
	select {
	case <-n.owed.drained():
	case <-time.After(lingerTimeout):
		log.Logf("linger=%s owed=true", lingerTimeout)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for dest, p := range n.peers {
		if cerr := p.client.Close(); cerr != nil && cerr != rpc.ErrShutdown && err == nil {
			err = errors.Wrapf(cerr, "close client %d", dest)
		}
	}
	for _, conn := range n.conns {
		conn.Close()
	}
	log.Logf("clients=%d conns=%d", len(n.peers), len(n.conns))
	return err
}

func (n *Network) startRPCServer() {
	log := n.log.At("serve")
	log.Logf("addr=%s job=%s", n.listener.Addr(), n.hosts.Job)
	go func() {
		for {
			conn, err := n.listener.Accept()
			if err != nil {
				select {
				case <-n.shutdown:
				default:
					log.Error(err)
				}
				return
			}
			n.mu.Lock()
			if n.closed {
				n.mu.Unlock()
				conn.Close()
				return
			}
			n.conns = append(n.conns, conn)
			n.mu.Unlock()
			go n.server.ServeCodec(newServerCodec(conn, &n.owed))
		}
	}()
}

func (n *Network) peer(ctx context.Context, dest int) (*peer, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	if p, ok := n.peers[dest]; ok {
		n.mu.Unlock()
		return p, nil
	}
	n.mu.Unlock()

	addr := n.hosts.Ranks[dest]
	var conn net.Conn
	err := retry(ctx, dialRetries, dialInterval, func() error {
		var d net.Dialer
		var err error
		conn, err = d.DialContext(ctx, "tcp", addr)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "dial rank %d at %s", dest, addr)
	}
	n.log.At("dial").Logf("peer=%d addr=%s", dest, addr)

	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.peers[dest]; ok {
		conn.Close()
		return p, nil
	}
	if n.closed {
		conn.Close()
		return nil, ErrClosed
	}
	p := &peer{client: rpc.NewClient(conn), gone: make(chan struct{})}
	n.peers[dest] = p
	n.watch(dest, p)
	return p, nil
}

// watch parks a Hold call on dest and marks the peer gone when it returns.
func (n *Network) watch(dest int, p *peer) {
	call := p.client.Go("Mailbox.Hold", n.hosts.Job, new(struct{}), make(chan *rpc.Call, 1))
	go func() {
		<-call.Done
		select {
		case <-n.shutdown:
			return
		default:
		}
		if call.Error != nil {
			p.err = errors.Wrapf(ErrPeerGone, "rank %d: %s", dest, call.Error)
		} else {
			p.err = errors.Wrapf(ErrPeerGone, "rank %d closed", dest)
		}
		n.log.At("watch").Logf("peer=%d err=%q", dest, p.err)
		close(p.gone)
	}()
}
