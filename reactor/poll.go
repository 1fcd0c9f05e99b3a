// Package reactor provides the default loop.Reactor implementation: a
// self-pipe polled with golang.org/x/sys/unix.Poll. This mirrors the
// self-pipe idiom in joeycumines-go-utilpkg/eventloop's poller_linux.go,
// minus the epoll/kqueue platform split — this reactor never registers real
// file descriptors, so the portable unix.Poll is all it needs.
package reactor

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/NetPo4ki/looprt/loop"
)

// Poll blocks in HandleIO on a self-pipe's read end. NotifyThreadAndSignalSafe
// (which may run from a foreign goroutine or a signal-delivery goroutine)
// fills loop's WakeupChannel; a bridge goroutine started by New turns that
// into a single byte written to the pipe, which unblocks the Poll syscall.
type Poll struct {
	rfd, wfd int
	wakes    atomic.Int64
	done     chan struct{}
}

// New constructs a Poll reactor bridged to wakeup. Intended for use as
// loop.NewRunner's reactorFactory:
//
//	r, err := loop.NewRunner(reactor.New, cfg)
func New(wakeup *loop.WakeupChannel) (loop.Reactor, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	p := &Poll{rfd: fds[0], wfd: fds[1], done: make(chan struct{})}
	go p.bridge(wakeup)
	return p, nil
}

// bridge forwards loop's channel-based wakeup onto the self-pipe so
// HandleIO's poll syscall can be the single place this process blocks.
func (p *Poll) bridge(wakeup *loop.WakeupChannel) {
	for {
		select {
		case <-wakeup.Chan():
			_, _ = unix.Write(p.wfd, []byte{0})
		case <-p.done:
			return
		}
	}
}

// HandleIO implements loop.Reactor.
func (p *Poll) HandleIO(timeout time.Duration) error {
	ms := int(timeout / time.Millisecond)
	fds := []unix.PollFd{{Fd: int32(p.rfd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	if n > 0 {
		p.wakes.Add(1)
		p.drainPipe()
	}
	return nil
}

func (p *Poll) drainPipe() {
	var buf [64]byte
	for {
		if _, err := unix.Read(p.rfd, buf[:]); err != nil {
			return
		}
	}
}

// Statistics implements loop.Reactor. TasksWaitingOnIO is always zero since
// this reactor multiplexes only the runner's own wakeup signal, never
// user-registered file descriptors.
func (p *Poll) Statistics() loop.ReactorStats {
	return loop.ReactorStats{TasksWaitingOnIO: 0, IOWakes: p.wakes.Load()}
}

// Close implements loop.Reactor.
func (p *Poll) Close() error {
	close(p.done)
	_ = unix.Close(p.wfd)
	return unix.Close(p.rfd)
}
