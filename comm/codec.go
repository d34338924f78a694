package comm

import (
	"bufio"
	"encoding/gob"
	"io"
	"net/rpc"
	"sync"
)

// replies counts the responses a server still owes its callers.
type replies struct {
	mu   sync.Mutex
	n    int
	idle []chan struct{}
}

func (r *replies) add() {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

func (r *replies) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n--
	if r.n == 0 {
		for _, ch := range r.idle {
			close(ch)
		}
		r.idle = nil
	}
}

// drained returns a channel that is closed once no response is owed.
func (r *replies) drained() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	if r.n == 0 {
		close(ch)
	} else {
		r.idle = append(r.idle, ch)
	}
	return ch
}

// serverCodec is the gob codec net/rpc serves with by default, plus the
// bookkeeping Close needs: every request header read owes one response.
type serverCodec struct {
	rwc    io.ReadWriteCloser
	dec    *gob.Decoder
	enc    *gob.Encoder
	encBuf *bufio.Writer
	owed   *replies
	closed bool
}

func newServerCodec(conn io.ReadWriteCloser, owed *replies) *serverCodec {
	buf := bufio.NewWriter(conn)
	return &serverCodec{
		rwc:    conn,
		dec:    gob.NewDecoder(conn),
		enc:    gob.NewEncoder(buf),
		encBuf: buf,
		owed:   owed,
	}
}

func (c *serverCodec) ReadRequestHeader(r *rpc.Request) error {
	if err := c.dec.Decode(r); err != nil {
		return err
	}
	c.owed.add()
	return nil
}

func (c *serverCodec) ReadRequestBody(body interface{}) error {
	return c.dec.Decode(body)
}

func (c *serverCodec) WriteResponse(r *rpc.Response, body interface{}) (err error) {
	defer c.owed.done()
	if err = c.enc.Encode(r); err != nil {
		if c.encBuf.Flush() == nil {
			c.Close()
		}
		return
	}
	if err = c.enc.Encode(body); err != nil {
		if c.encBuf.Flush() == nil {
			c.Close()
		}
		return
	}
	return c.encBuf.Flush()
}

func (c *serverCodec) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rwc.Close()
}
