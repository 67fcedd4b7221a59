// Package capture reads movement reports from live TCP feeds.
package capture

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Report is one movement log captured from a feed
type Report struct {
	Source    string
	Content   string
	Timestamp time.Time
}

// Options tune a Capture. Zero values select the defaults.
type Options struct {
	// HeaderMarker starts a new report
	HeaderMarker string
	// IdleGap flushes a pending report when the feed goes quiet
	IdleGap        time.Duration
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

func (o *Options) setDefaults() {
	if o.IdleGap <= 0 {
		o.IdleGap = 30 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Capture represents a network capture instance
type Capture struct {
	sources  []string
	opts     Options
	logger   *zap.Logger
	conns    map[string]net.Conn
	reports  chan Report
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

// New creates a new Capture instance
func New(sources []string, opts Options) *Capture {
	opts.setDefaults()
	return &Capture{
		sources:  sources,
		opts:     opts,
		logger:   opts.Logger,
		conns:    make(map[string]net.Conn),
		reports:  make(chan Report, 100),
		stopChan: make(chan struct{}),
	}
}

// Start begins reading reports from all sources
func (c *Capture) Start() error {
	for _, source := range c.sources {
		c.wg.Add(1)
		go c.connectToSource(source)
	}
	return nil
}

// Stop closes every connection and waits for the readers. Reports already
// buffered stay readable until the channel drains.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.mu.Lock()
		for _, conn := range c.conns {
			_ = conn.Close()
		}
		c.mu.Unlock()
		c.wg.Wait()
		close(c.reports)
	})
}

// Reports returns the channel for receiving reports
func (c *Capture) Reports() <-chan Report {
	return c.reports
}

func (c *Capture) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// configureTCPKeepalive configures TCP keepalive settings
func (c *Capture) configureTCPKeepalive(conn net.Conn, source string) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		c.logger.Warn("failed to set keepalive", zap.String("source", source), zap.Error(err))
	}
	if err := tcpConn.SetKeepAlivePeriod(10 * time.Second); err != nil {
		c.logger.Warn("failed to set keepalive period", zap.String("source", source), zap.Error(err))
	}
}

func (c *Capture) connectToSource(source string) {
	defer c.wg.Done()

	var disconnectedAt time.Time
	for !c.stopped() {
		conn, err := net.DialTimeout("tcp", source, 10*time.Second)
		if err != nil {
			if disconnectedAt.IsZero() {
				disconnectedAt = time.Now()
				c.logger.Warn("failed to connect to feed", zap.String("source", source), zap.Error(err))
			}
			select {
			case <-time.After(c.opts.ReconnectDelay):
			case <-c.stopChan:
				return
			}
			continue
		}

		c.configureTCPKeepalive(conn, source)
		if disconnectedAt.IsZero() {
			c.logger.Info("connected to feed", zap.String("source", source))
		} else {
			c.logger.Info("reconnected to feed", zap.String("source", source),
				zap.Duration("after", time.Since(disconnectedAt)))
			disconnectedAt = time.Time{}
		}

		c.mu.Lock()
		c.conns[source] = conn
		c.mu.Unlock()

		c.handleConnection(source, conn)

		c.mu.Lock()
		delete(c.conns, source)
		c.mu.Unlock()
		disconnectedAt = time.Now()
	}
}

func (c *Capture) handleConnection(source string, conn net.Conn) {
	defer conn.Close()

	split := newSplitter(c.opts.HeaderMarker)
	buffer := make([]byte, 4096)
	lastData := time.Now()

	defer func() {
		if report, ok := split.flush(); ok {
			c.emit(source, report)
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.opts.IdleGap / 2)); err != nil {
			c.logger.Warn("failed to set read deadline", zap.String("source", source), zap.Error(err))
		}

		n, err := conn.Read(buffer)
		if n > 0 {
			lastData = time.Now()
			for _, report := range split.write(buffer[:n]) {
				if !c.emit(source, report) {
					return
				}
			}
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && !c.stopped() {
			if split.pending() && time.Since(lastData) >= c.opts.IdleGap {
				if report, ok := split.flush(); ok && !c.emit(source, report) {
					return
				}
			}
			continue
		}
		if !c.stopped() {
			c.logger.Warn("feed connection lost", zap.String("source", source), zap.Error(err))
		}
		return
	}
}

// emit delivers a report; it reports false once the capture is stopping
func (c *Capture) emit(source, content string) bool {
	report := Report{Source: source, Content: content, Timestamp: time.Now().UTC()}
	select {
	case c.reports <- report:
		return true
	case <-c.stopChan:
		// keep the report if the consumer still has room for it
		select {
		case c.reports <- report:
		default:
		}
		return false
	}
}
