package comm_test

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hughevre/DistributedMergeSort/comm"
	"github.com/convox/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLocal(t *testing.T, size int, fn func(ctx context.Context, g comm.Group) error) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	l := comm.NewLocal(size)
	defer l.Shutdown()
	return l.Run(ctx, fn)
}

func TestLocalSendRecv(t *testing.T) {
	err := runLocal(t, 2, func(ctx context.Context, g comm.Group) error {
		if g.Rank() == 1 {
			buf := []int64{4, 1}
			if err := g.Send(ctx, buf, 0, 0); err != nil {
				return err
			}
			buf[0] = 99
			return nil
		}
		buf := make([]int64, 2)
		if err := g.Recv(ctx, buf, 1, 0); err != nil {
			return err
		}
		assert.Equal(t, []int64{4, 1}, buf)
		return nil
	})
	require.NoError(t, err)
}

func TestLocalTagsAreSeparate(t *testing.T) {
	err := runLocal(t, 2, func(ctx context.Context, g comm.Group) error {
		if g.Rank() == 1 {
			if err := g.Send(ctx, []int64{2}, 0, 2); err != nil {
				return err
			}
			return g.Send(ctx, []int64{1}, 0, 1)
		}
		a := make([]int64, 1)
		b := make([]int64, 1)
		done := make(chan error, 1)
		go func() { done <- g.Recv(ctx, b, 1, 2) }()
		if err := g.Recv(ctx, a, 1, 1); err != nil {
			return err
		}
		if err := <-done; err != nil {
			return err
		}
		assert.Equal(t, int64(1), a[0])
		assert.Equal(t, int64(2), b[0])
		return nil
	})
	require.NoError(t, err)
}

func TestLocalLengthMismatch(t *testing.T) {
	err := runLocal(t, 2, func(ctx context.Context, g comm.Group) error {
		if g.Rank() == 1 {
			return g.Send(ctx, []int64{1, 2, 3}, 0, 0)
		}
		return g.Recv(ctx, make([]int64, 2), 1, 0)
	})
	require.Error(t, err)
	assert.Equal(t, comm.ErrLength, errors.Cause(err))
}

func TestLocalRejectsBadPeer(t *testing.T) {
	l := comm.NewLocal(2)
	g := l.Member(0)
	ctx := context.Background()
	assert.Error(t, g.Send(ctx, nil, 0, 0))
	assert.Error(t, g.Send(ctx, nil, 2, 0))
	assert.Error(t, g.Recv(ctx, nil, -1, 0))
}

func TestLocalAbortUnblocksPeers(t *testing.T) {
	err := runLocal(t, 4, func(ctx context.Context, g comm.Group) error {
		if g.Rank() == 3 {
			return errors.New("allocation failed")
		}
		// waits on a message that never comes
		return g.Recv(ctx, make([]int64, 1), 3, 0)
	})
	require.EqualError(t, err, "allocation failed")
}

func TestLocalShutdown(t *testing.T) {
	l := comm.NewLocal(2)
	l.Shutdown()
	err := l.Member(0).Recv(context.Background(), nil, 1, 0)
	assert.Equal(t, comm.ErrClosed, err)
}

func TestCollectives(t *testing.T) {
	for _, size := range []int{1, 2, 4, 8} {
		input := make([]int64, size*3)
		for i := range input {
			input[i] = int64(i * 10)
		}
		err := runLocal(t, size, func(ctx context.Context, g comm.Group) error {
			if err := comm.Barrier(ctx, g); err != nil {
				return err
			}

			n := []int64{0}
			if g.Rank() == 0 {
				n[0] = int64(len(input))
			}
			if err := comm.Bcast(ctx, g, n, 0); err != nil {
				return err
			}
			assert.Equal(t, int64(size*3), n[0])

			var send []int64
			if g.Rank() == 0 {
				send = input
			}
			shard := make([]int64, n[0]/int64(g.Size()))
			if err := comm.Scatter(ctx, g, send, shard, 0); err != nil {
				return err
			}
			r := int64(g.Rank())
			assert.Equal(t, []int64{r * 30, r*30 + 10, r*30 + 20}, shard)

			return comm.Barrier(ctx, g)
		})
		require.NoError(t, err, "size=%d", size)
	}
}

func TestScatterRejectsShortInput(t *testing.T) {
	l := comm.NewLocal(1)
	err := comm.Scatter(context.Background(), l.Member(0), []int64{1, 2, 3}, make([]int64, 2), 0)
	require.Error(t, err)
}

func TestTrace(t *testing.T) {
	tr := comm.NewTrace()
	err := runLocal(t, 2, func(ctx context.Context, g comm.Group) error {
		g = tr.Wrap(g)
		if g.Rank() == 1 {
			if err := g.Send(ctx, []int64{1, 2}, 0, 0); err != nil {
				return err
			}
			return g.Send(ctx, []int64{3}, 0, 0)
		}
		if err := g.Recv(ctx, make([]int64, 2), 1, 0); err != nil {
			return err
		}
		return g.Recv(ctx, make([]int64, 1), 1, 0)
	})
	require.NoError(t, err)
	assert.Equal(t, []comm.Event{
		{From: 1, To: 0, Tag: 0, Length: 2, Seq: 0},
		{From: 1, To: 0, Tag: 0, Length: 1, Seq: 1},
	}, tr.Events())
}

func TestHostfile(t *testing.T) {
	dir, err := ioutil.TempDir("", "hostfile")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "group.yml")
	h := comm.Loopback("nightly", 4, 7400)
	require.NoError(t, h.Save(path))

	loaded, err := comm.LoadHostfile(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", loaded.Job)
	assert.Equal(t, []string{"127.0.0.1:7400", "127.0.0.1:7401", "127.0.0.1:7402", "127.0.0.1:7403"}, loaded.Ranks)

	p := comm.ParsePeers("job", " a:1, b:2 ,,c:3")
	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, p.Ranks)

	assert.Error(t, comm.ParsePeers("job", "").Validate())
	assert.Error(t, comm.ParsePeers("job", "a:1,a:1").Validate())

	require.NoError(t, ioutil.WriteFile(path, []byte("job: x\nranks: []\n"), 0644))
	_, err = comm.LoadHostfile(path)
	assert.Error(t, err)
}

func startNetwork(t *testing.T, size int) []*comm.Network {
	t.Helper()
	listeners := make([]net.Listener, size)
	hosts := &comm.Hostfile{Job: "test", Ranks: make([]string, size)}
	for i := range listeners {
		l, err := comm.Listen("127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = l
		hosts.Ranks[i] = l.Addr().String()
	}
	log := logger.NewWriter("ns=test", ioutil.Discard)
	nets := make([]*comm.Network, size)
	for i := range nets {
		n, err := comm.NewNetwork(i, hosts, listeners[i], log)
		require.NoError(t, err)
		nets[i] = n
	}
	return nets
}

func TestNetworkCollectives(t *testing.T) {
	size := 4
	nets := startNetwork(t, size)
	defer func() {
		for _, n := range nets {
			assert.NoError(t, n.Close())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	input := []int64{5, 2, 8, 1, 9, 3, 7, 4}
	errs := make(chan error, size)
	shards := make([][]int64, size)
	for i, n := range nets {
		go func(i int, g comm.Group) {
			errs <- func() error {
				if err := comm.Barrier(ctx, g); err != nil {
					return err
				}
				length := []int64{0}
				var send []int64
				if g.Rank() == 0 {
					length[0] = int64(len(input))
					send = input
				}
				if err := comm.Bcast(ctx, g, length, 0); err != nil {
					return err
				}
				shards[i] = make([]int64, length[0]/int64(g.Size()))
				if err := comm.Scatter(ctx, g, send, shards[i], 0); err != nil {
					return err
				}
				return comm.Barrier(ctx, g)
			}()
		}(i, n)
	}
	for range nets {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, [][]int64{{5, 2}, {8, 1}, {9, 3}, {7, 4}}, shards)
}

func TestNetworkRejectsForeignJob(t *testing.T) {
	nets := startNetwork(t, 2)
	defer nets[0].Close()
	defer nets[1].Close()

	foreign := &comm.Hostfile{Job: "other", Ranks: []string{"127.0.0.1:1", nets[1].Addr().String()}}
	l, err := comm.Listen("127.0.0.1:0")
	require.NoError(t, err)
	foreign.Ranks[0] = l.Addr().String()
	n, err := comm.NewNetwork(0, foreign, l, logger.NewWriter("ns=test", ioutil.Discard))
	require.NoError(t, err)
	defer n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, n.Send(ctx, []int64{1}, 1, 0))
}

func TestNetworkClose(t *testing.T) {
	nets := startNetwork(t, 2)
	require.NoError(t, nets[0].Close())
	require.NoError(t, nets[0].Close())
	defer nets[1].Close()

	err := nets[0].Recv(context.Background(), make([]int64, 1), 1, 0)
	assert.Equal(t, comm.ErrClosed, err)
}

func TestNetworkCloseDeliversLastReply(t *testing.T) {
	for i := 0; i < 50; i++ {
		nets := startNetwork(t, 2)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		// rank 1 leaves as soon as it has the message; rank 0 must still
		// see its send succeed
		done := make(chan error, 1)
		go func() {
			err := nets[1].Recv(ctx, make([]int64, 3), 0, 5)
			nets[1].Close()
			done <- err
		}()
		assert.NoError(t, nets[0].Send(ctx, []int64{1, 2, 3}, 1, 5), "run %d", i)
		assert.NoError(t, <-done)

		cancel()
		nets[0].Close()
	}
}

func TestNetworkRecvFailsWhenPeerLeaves(t *testing.T) {
	nets := startNetwork(t, 2)
	defer nets[1].Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- nets[1].Recv(ctx, make([]int64, 1), 0, 0)
	}()
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, nets[0].Close())

	select {
	case err := <-done:
		assert.Equal(t, comm.ErrPeerGone, errors.Cause(err), "%v", err)
	case <-ctx.Done():
		t.Fatal("recv still blocked after its source closed")
	}
}
