package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thruflo/remoteui/internal/auth"
	"github.com/thruflo/remoteui/internal/config"
	"github.com/thruflo/remoteui/internal/control"
	"github.com/thruflo/remoteui/internal/logging"
	"github.com/thruflo/remoteui/internal/protocol"
	"github.com/thruflo/remoteui/internal/video"
)

// Config holds server configuration options.
type Config struct {
	// Host and Port are the viewer TCP listener. Port 0 picks a free port.
	Host string
	Port int

	// EnableWeb starts the HTTP/websocket listener on WebPort.
	EnableWeb bool
	WebPort   int
	// PasswordHash protects the web endpoint when set.
	PasswordHash string
	RateLimit    RateLimitConfig
	// TrustProxy takes the client address for rate limiting from proxy
	// headers instead of the socket.
	TrustProxy bool

	Encoding    string
	JPEGQuality int
	// IdleTimeout is how long without a frame before the stream counts as idle.
	IdleTimeout time.Duration

	// InitialState defaults to control.DefaultState.
	InitialState *control.State

	LogLevel string
	// Logger defaults to a stderr logger. The server sets its level.
	Logger *logging.Logger
}

type phase int

const (
	phaseCreated phase = iota
	phaseStarted
	phaseStopped
)

// Server is the interface server. The producer calls its methods from its own
// loop; listeners, viewer sessions and frame distribution run on goroutines
// owned by the server.
type Server struct {
	cfg     Config
	log     *logging.Logger
	state   *control.Slot
	ready   *Latch
	hub     *hub
	frames  *video.Mailbox[*video.Frame]
	prog    *telemetry[protocol.ProgressMsg]
	rates   *telemetry[protocol.SampleRateMsg]
	tokens  *auth.TokenStore
	limiter *rateLimiter

	// editMu orders state broadcasts with the edits that produced them.
	editMu sync.Mutex

	mu          sync.Mutex
	phase       phase
	geometry    video.Geometry
	frameSeq    uint64
	lastFrameAt time.Time
	listener    net.Listener
	webListener net.Listener
	httpServer  *http.Server
	cancel      context.CancelFunc
	group       *errgroup.Group
	stopWatch   func() bool
	sessions    sync.WaitGroup

	// stopDone is closed once the first Stop has finished tearing down.
	stopDone chan struct{}
	stopErr  error
}

// NewServer creates a Server. Nothing is bound until Start.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	c := *cfg

	if c.Port < 0 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", c.Port)
	}
	if c.EnableWeb && (c.WebPort < 0 || c.WebPort > 65535) {
		return nil, fmt.Errorf("invalid web port %d", c.WebPort)
	}
	if c.PasswordHash != "" {
		if err := auth.CheckHash(c.PasswordHash); err != nil {
			return nil, err
		}
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = config.DefaultJPEGQuality
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = config.DefaultIdleTimeout
	}
	encoder, err := video.NewEncoder(c.Encoding, c.JPEGQuality)
	if err != nil {
		return nil, err
	}

	initial := control.DefaultState()
	if c.InitialState != nil {
		initial = *c.InitialState
	}
	if initial.Steps < 1 {
		return nil, fmt.Errorf("initial state: %w", control.ErrInvalidSteps)
	}

	log := c.Logger
	if log == nil {
		log = logging.New()
	}
	if c.LogLevel != "" {
		level, err := logging.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, err
		}
		log.SetLevel(level)
	}

	s := &Server{
		cfg:      c,
		log:      log,
		state:    control.NewSlot(initial),
		ready:    NewLatch(),
		frames:   video.NewMailbox[*video.Frame](),
		prog:     newTelemetry[protocol.ProgressMsg](protocol.TypeProgress),
		rates:    newTelemetry[protocol.SampleRateMsg](protocol.TypeSampleRate),
		tokens:   auth.NewTokenStore(auth.DefaultTokenTTL),
		limiter:  newRateLimiter(c.RateLimit, log.With("component", "auth")),
		stopDone: make(chan struct{}),
	}
	s.hub = newHub(log.With("component", "hub"), encoder,
		protocol.MustEncode(protocol.TypeState, protocol.NewStateMsg(initial, 0)))
	return s, nil
}

// NewServerFromConfig creates a Server from a loaded configuration file.
func NewServerFromConfig(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	initial := control.State{
		IsPlaying: cfg.State.IsPlaying,
		Prompt:    cfg.State.Prompt,
		Steps:     cfg.State.Steps,
		Value:     cfg.State.Value,
	}
	return NewServer(&Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		EnableWeb:    cfg.Server.WebPort >= 0,
		WebPort:      cfg.Server.WebPort,
		PasswordHash: cfg.Server.PasswordHash,
		TrustProxy:   cfg.Server.TrustProxy,
		Encoding:     cfg.Video.Encoding,
		JPEGQuality:  cfg.Video.JPEGQuality,
		IdleTimeout:  cfg.Video.IdleTimeout,
		InitialState: &initial,
		LogLevel:     cfg.LogLevel,
	})
}

// Start binds the listeners and returns once they are accepting. Viewers are
// served in the background until Stop is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case phaseStarted:
		return ErrAlreadyStarted
	case phaseStopped:
		return ErrAlreadyStopped
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}

	var webListener net.Listener
	if s.cfg.EnableWeb {
		webAddr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.WebPort))
		webListener, err = net.Listen("tcp", webAddr)
		if err != nil {
			listener.Close()
			return &BindError{Addr: webAddr, Err: err}
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)

	s.listener = listener
	s.webListener = webListener
	s.cancel = cancel
	s.group = g
	s.phase = phaseStarted
	s.lastFrameAt = time.Now()

	g.Go(func() error { return s.acceptLoop(gctx, listener) })
	g.Go(func() error { s.hub.runFrames(s.frames); return nil })
	g.Go(func() error { s.prog.relay(s.hub); return nil })
	g.Go(func() error { s.rates.relay(s.hub); return nil })
	g.Go(func() error { s.watchIdle(gctx); return nil })

	if webListener != nil {
		s.httpServer = &http.Server{
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		httpServer := s.httpServer
		g.Go(func() error {
			if err := httpServer.Serve(webListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
		g.Go(func() error { s.sweepAuth(gctx); return nil })
	}

	s.stopWatch = context.AfterFunc(ctx, func() {
		if err := s.Stop(); err != nil {
			s.log.Error("stop after context cancel failed", "error", err)
		}
	})

	s.ready.Open()
	s.log.Info("interface server listening", "addr", listener.Addr().String(), "web", s.webAddrLocked())
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", "error", err)
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}
		if !s.track(func() { s.serveViewer(protocol.NewStreamConn(conn), "tcp") }) {
			conn.Close()
		}
	}
}

// track runs fn on a new goroutine counted by Stop. It refuses once the server
// is stopping.
func (s *Server) track(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseStarted {
		return false
	}
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		fn()
	}()
	return true
}

// WaitUntilReady blocks until the server accepts viewers or timeout elapses.
// A timeout of zero or less waits until ready or stopped.
func (s *Server) WaitUntilReady(timeout time.Duration) (bool, error) {
	if s.stopped() {
		return false, ErrAlreadyStopped
	}
	ready, aborted := s.ready.Wait(timeout)
	if ready && !s.stopped() {
		return true, nil
	}
	if aborted || s.stopped() {
		return false, ErrAlreadyStopped
	}
	return false, nil
}

// Stop shuts the server down and waits for every goroutine it started. It is
// safe to call more than once and from several goroutines: every call returns
// after teardown has finished, with the teardown's error.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.phase == phaseStopped {
		s.mu.Unlock()
		<-s.stopDone
		return s.stopErr
	}
	wasStarted := s.phase == phaseStarted
	s.phase = phaseStopped
	s.mu.Unlock()

	s.stopErr = s.teardown(wasStarted)
	close(s.stopDone)
	return s.stopErr
}

// teardown runs once, from the first Stop.
func (s *Server) teardown(wasStarted bool) error {
	s.mu.Lock()
	listener, webListener, httpServer := s.listener, s.webListener, s.httpServer
	cancel, group, stopWatch := s.cancel, s.group, s.stopWatch
	s.mu.Unlock()

	s.ready.Abort()
	s.frames.Close()
	s.prog.close()
	s.rates.close()

	if !wasStarted {
		s.log.Debug("server stopped before start")
		return nil
	}

	stopWatch()
	cancel()
	listener.Close()

	var errs []error
	if httpServer != nil {
		ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown error: %w", err))
		}
		cancelShutdown()
		webListener.Close()
	}

	s.hub.closeAll()
	s.sessions.Wait()
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}

	s.log.Info("interface server stopped")
	return errors.Join(errs...)
}

// InitialiseVideoStream fixes the frame geometry. Repeating the current
// geometry does nothing. A new geometry discards the pending frame and is
// announced to every viewer before any frame of the new size.
func (s *Server) InitialiseVideoStream(width, height int) error {
	g := video.Geometry{Width: width, Height: height}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == phaseStopped {
		return ErrAlreadyStopped
	}
	if s.geometry == g {
		return nil
	}
	if s.geometry.Width != 0 {
		s.log.Info("video stream re-initialised", "from", s.geometry, "to", g)
	} else {
		s.log.Info("video stream initialised", "geometry", g)
	}
	s.geometry = g
	s.frames.Discard()
	s.hub.setGeometry(g)
	return nil
}

// SendImage copies img into the frame slot, replacing any frame not yet
// distributed. With convertToBGR the first and third channels are swapped
// while copying. img is not retained.
func (s *Server) SendImage(img video.Raster, convertToBGR bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == phaseStopped {
		return ErrAlreadyStopped
	}
	if s.geometry.Width == 0 {
		return ErrNotInitialized
	}
	if err := img.CheckShape(s.geometry); err != nil {
		return fmt.Errorf("%w: %v", ErrGeometryMismatch, err)
	}

	f := video.CopyFrame(img, convertToBGR)
	s.frameSeq++
	f.Seq = s.frameSeq
	s.lastFrameAt = f.Timestamp
	if s.frames.Publish(f) {
		s.log.Trace("frame replaced before distribution", "seq", f.Seq)
	}
	return nil
}

// UpdateProgress publishes the producer's progress. Only the latest value is
// guaranteed to reach viewers.
func (s *Server) UpdateProgress(step, total int) error {
	s.mu.Lock()
	stopped, initialised := s.phase == phaseStopped, s.geometry.Width != 0
	s.mu.Unlock()

	switch {
	case stopped:
		return ErrAlreadyStopped
	case !initialised:
		return ErrNotInitialized
	case step < 0:
		return fmt.Errorf("%w: step %d", ErrInvalidProgress, step)
	}
	s.prog.publish(protocol.NewProgressMsg(step, total))
	return nil
}

// UpdateSampleRate publishes renderer throughput. Only the latest value is
// guaranteed to reach viewers.
func (s *Server) UpdateSampleRate(pathRate, rayRate float32) error {
	if s.stopped() {
		return ErrAlreadyStopped
	}
	s.rates.publish(protocol.SampleRateMsg{PathRate: pathRate, RayRate: rayRate})
	return nil
}

// GetState returns the current control state without clearing the dirty flag.
func (s *Server) GetState() (control.State, error) {
	if s.stopped() {
		return control.State{}, ErrAlreadyStopped
	}
	return s.state.Peek(), nil
}

// StateChanged reports whether a viewer edited the state since the last
// ConsumeState.
func (s *Server) StateChanged() (bool, error) {
	if s.stopped() {
		return false, ErrAlreadyStopped
	}
	return s.state.Changed(), nil
}

// ConsumeState returns the current state and clears the dirty flag.
func (s *Server) ConsumeState() (control.State, error) {
	if s.stopped() {
		return control.State{}, ErrAlreadyStopped
	}
	return s.state.Consume(), nil
}

// applyEdit is the single write path into the control state.
func (s *Server) applyEdit(e control.Edit) error {
	if e.Empty() {
		return nil
	}
	s.editMu.Lock()
	defer s.editMu.Unlock()

	state, version, err := s.state.Apply(e)
	if err != nil {
		return err
	}
	s.log.Debug("state edited", "state", state, "version", version)
	s.hub.publish(protocol.MustEncode(protocol.TypeState, protocol.NewStateMsg(state, version)))
	return nil
}

// SetLogLevel changes the verbosity of this server's logger.
func (s *Server) SetLogLevel(level string) error {
	if s.stopped() {
		return ErrAlreadyStopped
	}
	l, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	s.log.SetLevel(l)
	return nil
}

// Addr returns the viewer listener's address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// WebAddr returns the web listener's address, or "" when it is disabled or
// not started.
func (s *Server) WebAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webAddrLocked()
}

func (s *Server) webAddrLocked() string {
	if s.webListener == nil {
		return ""
	}
	return s.webListener.Addr().String()
}

// Logger returns the server's logger.
func (s *Server) Logger() *logging.Logger {
	return s.log
}

func (s *Server) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phaseStopped
}

// Stats is a point-in-time view of the server.
type Stats struct {
	Ready    bool           `json:"ready"`
	Stopped  bool           `json:"stopped"`
	Viewers  int            `json:"viewers"`
	Geometry video.Geometry `json:"geometry"`

	FramesSubmitted uint64 `json:"frames_submitted"`
	// FramesDropped counts frames replaced before the hub took them.
	FramesDropped uint64 `json:"frames_dropped"`
	// ViewerFramesDropped counts frames replaced in a viewer's outbox.
	ViewerFramesDropped uint64 `json:"viewer_frames_dropped"`
	FramesEncoded       uint64 `json:"frames_encoded"`
	ProgressDropped     uint64 `json:"progress_dropped"`

	LastFrameAt time.Time `json:"last_frame_at"`
	// Idle is set when no frame arrived within the idle timeout.
	Idle bool `json:"idle"`
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Stopped:     s.phase == phaseStopped,
		Geometry:    s.geometry,
		LastFrameAt: s.lastFrameAt,
		Idle:        s.phase == phaseStarted && time.Since(s.lastFrameAt) > s.cfg.IdleTimeout,
	}
	s.mu.Unlock()

	st.Ready = s.ready.IsOpen()
	st.Viewers = s.hub.count()
	st.FramesSubmitted = s.frames.Published()
	st.FramesDropped = s.frames.Dropped()
	st.ViewerFramesDropped = s.hub.viewerDrops()
	st.FramesEncoded = s.hub.framesEncoded.Load()
	st.ProgressDropped = s.prog.dropped()
	return st
}

// watchIdle logs when the producer stops and resumes sending frames.
func (s *Server) watchIdle(ctx context.Context) {
	interval := s.cfg.IdleTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	idle := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.Stats().Idle
			if now && !idle {
				s.log.Info("video stream idle", "timeout", s.cfg.IdleTimeout)
			} else if !now && idle {
				s.log.Info("video stream resumed")
			}
			idle = now
		}
	}
}
