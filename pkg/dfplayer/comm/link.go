package comm

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
)

// FrameHandler is called when a frame is not a reply to the pending request.
type FrameHandler interface {
	HandleFrame(context.Context, Frame)
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func(context.Context, Frame)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, frame Frame) {
	f(ctx, frame)
}

// Observer is notified about link activities.
// All methods are called from the Link loop.
type Observer interface {
	FrameSent(cmd byte, retransmit bool)
	FrameReceived(cmd byte)
	FrameDropped(err error)
	RequestDone(cmd byte, err error, elapsed time.Duration)
}

// Request describes a command to be sent and how its reply is matched.
type Request struct {
	Command Command
	// Query indicates the reply is a frame with the same command code
	// carrying the result in the parameter. Acks are not replies to queries.
	Query bool
	// ExtraTimeout is added to Link.Timeout for every attempt.
	ExtraTimeout time.Duration
	// OnSend is called from the Link loop right before the first
	// transmission.
	OnSend func(context.Context)
	// OnReply is called from the Link loop when the reply is received,
	// before the result is delivered to the caller.
	OnReply func(context.Context, Frame)
}

// Result is the outcome of a request.
type Result struct {
	Err   error
	Frame Frame
}

// Default settings for a Link.
const (
	DefaultTimeout = 100 * time.Millisecond
	DefaultRetries = 7
)

// Link sends requests and receives frames over a ReadWriter.
// Only one request can be awaiting reply at any time.
type Link struct {
	ReadWriter io.ReadWriter
	Handler    FrameHandler
	Observer   Observer
	// Timeout is the deadline for a single attempt.
	Timeout time.Duration
	// Retries is the maximum number of retransmissions, at least 1.
	// A request without reply fails with ErrTimeout after Retries+1
	// attempts, no earlier than (Retries+1)*(Timeout+ExtraTimeout) and
	// no later than that plus scheduling delays.
	Retries int

	slot     chan struct{}
	reqCh    chan *pendingRequest
	stopped  chan struct{}
	stopOnce sync.Once

	// owned by Run.
	parser   Parser
	pending  *pendingRequest
	deadline <-chan time.Time
}

type pendingRequest struct {
	Request
	packet  []byte
	retries int
	started time.Time
	result  chan Result
}

func (p *pendingRequest) matches(f Frame) bool {
	if f.Command == p.Command.Code {
		return true
	}
	return !p.Query && f.Command == CodeAck
}

func (p *pendingRequest) expectsReply() bool {
	return p.Query || p.Command.Feedback
}

// NewLink creates a Link.
func NewLink(rw io.ReadWriter) *Link {
	return &Link{
		ReadWriter: rw,
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		slot:       make(chan struct{}, 1),
		reqCh:      make(chan *pendingRequest),
		stopped:    make(chan struct{}),
	}
}

// Busy indicates a request is awaiting reply.
func (l *Link) Busy() bool {
	return len(l.slot) > 0
}

// Done is closed when Run returns.
func (l *Link) Done() <-chan struct{} {
	return l.stopped
}

// Do sends the request and waits for the result.
// It fails immediately with ErrBusy if another request is in flight.
// When ctx is done, Do stops waiting but the request stays in flight until
// it's replied or timed out.
func (l *Link) Do(ctx context.Context, req Request) (Frame, error) {
	pkt, err := req.Command.Encode()
	if err != nil {
		return Frame{}, err
	}
	select {
	case l.slot <- struct{}{}:
	default:
		return Frame{}, ErrBusy
	}
	p := &pendingRequest{Request: req, packet: pkt, result: make(chan Result, 1)}
	select {
	case l.reqCh <- p:
	case <-l.stopped:
		<-l.slot
		return Frame{}, ErrClosed
	case <-ctx.Done():
		<-l.slot
		return Frame{}, ctx.Err()
	}
	select {
	case r := <-p.result:
		return r.Frame, r.Err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Send sends a command and waits for the ack.
func (l *Link) Send(ctx context.Context, cmd Command) error {
	_, err := l.Do(ctx, Request{Command: cmd})
	return err
}

// Query sends a query command and returns the parameter of the reply.
func (l *Link) Query(ctx context.Context, cmd Command) (uint16, error) {
	f, err := l.Do(ctx, Request{Command: cmd, Query: true})
	return f.Param, err
}

// Run processes the link until ctx is done or the ReadWriter fails.
// It must be called only once.
func (l *Link) Run(ctx context.Context) error {
	defer l.stop()
	byteCh, errCh := make(chan []byte, 16), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.readLoop(subCtx, byteCh, errCh)
	for {
		var err error
		select {
		case data := <-byteCh:
			l.parser.Feed(data)
			err = l.processFrames(ctx)
		case p := <-l.reqCh:
			err = l.transmit(ctx, p)
		case <-l.deadline:
			err = l.retry(ErrTimeout)
		case err = <-errCh:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			return err
		}
	}
}

func (l *Link) readLoop(ctx context.Context, byteCh chan<- []byte, errCh chan<- error) {
	buf := make([]byte, 64)
	for {
		n, err := l.ReadWriter.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case byteCh <- data:
			case <-ctx.Done():
				return
			}
		}
		if err != nil && !os.IsTimeout(err) {
			errCh <- err
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (l *Link) processFrames(ctx context.Context) error {
	for {
		f, err := l.parser.Next()
		switch err {
		case nil:
			if err = l.handleFrame(ctx, f); err != nil {
				return err
			}
		case ErrNeedMoreBytes:
			return nil
		default:
			glog.V(3).Infof("drop bytes: %v", err)
			if o := l.Observer; o != nil {
				o.FrameDropped(err)
			}
		}
	}
}

func (l *Link) handleFrame(ctx context.Context, f Frame) error {
	glog.V(3).Infof("--> %s", f)
	if o := l.Observer; o != nil {
		o.FrameReceived(f.Command)
	}
	if p := l.pending; p != nil && !IsUnsolicited(f.Command) {
		switch {
		case f.Command == CodeError:
			err := &DeviceError{Code: f.ParamLow()}
			glog.V(1).Infof("CMD 0x%02x: %v", p.Command.Code, err)
			return l.retry(err)
		case p.matches(f):
			if p.OnReply != nil {
				p.OnReply(ctx, f)
			}
			l.resolve(Result{Frame: f})
			return nil
		case f.Command == CodeAck:
			// the ack precedes the reply of a query.
			return nil
		}
	}
	switch f.Command {
	case CodeAck, CodeError:
		glog.V(2).Infof("stray reply %s", f)
		return nil
	}
	if h := l.Handler; h != nil {
		h.HandleFrame(ctx, f)
	}
	return nil
}

func (l *Link) transmit(ctx context.Context, p *pendingRequest) error {
	l.pending, p.started = p, time.Now()
	if p.OnSend != nil {
		p.OnSend(ctx)
	}
	glog.V(2).Infof("<-- CMD 0x%02x param=0x%02x%02x", p.Command.Code, p.Command.Param1, p.Command.Param2)
	return l.write(false)
}

func (l *Link) write(retransmit bool) error {
	p := l.pending
	// partial frames received so far can't be the reply.
	if n := l.parser.Buffered(); n > 0 {
		glog.V(3).Infof("discard %d stale bytes", n)
		l.parser.Reset()
		if o := l.Observer; o != nil {
			o.FrameDropped(ErrInvalidFrame)
		}
	}
	if _, err := l.ReadWriter.Write(p.packet); err != nil {
		l.resolve(Result{Err: err})
		return err
	}
	if o := l.Observer; o != nil {
		o.FrameSent(p.Command.Code, retransmit)
	}
	if !p.expectsReply() {
		l.resolve(Result{})
		return nil
	}
	l.deadline = time.After(l.Timeout + p.ExtraTimeout)
	return nil
}

func (l *Link) retry(cause error) error {
	p := l.pending
	if p.retries >= l.maxRetries() {
		glog.Warningf("CMD 0x%02x failed after %d retries: %v", p.Command.Code, p.retries, cause)
		l.resolve(Result{Err: cause})
		return nil
	}
	p.retries++
	glog.V(1).Infof("CMD 0x%02x %v, retry %d/%d", p.Command.Code, cause, p.retries, l.maxRetries())
	return l.write(true)
}

func (l *Link) maxRetries() int {
	if l.Retries < 1 {
		return 1
	}
	return l.Retries
}

func (l *Link) resolve(r Result) {
	p := l.pending
	l.pending, l.deadline = nil, nil
	if o := l.Observer; o != nil {
		o.RequestDone(p.Command.Code, r.Err, time.Since(p.started))
	}
	<-l.slot
	p.result <- r
}

func (l *Link) stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
	if l.pending != nil {
		l.resolve(Result{Err: ErrClosed})
	}
}
