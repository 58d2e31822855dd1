//go:build linux

// Command onvifd is the ONVIF camera daemon: it wires the Config
// Storage/Runtime, the epoll-driven HTTP/SOAP request engine, the RTSP
// session engine, and the ONVIF service handlers into one process, then
// runs until SIGINT/SIGTERM. Grounded on cmd/server/main.go's layered
// startup/shutdown sequencing.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/auth"
	"github.com/onvifcam/onvifd/internal/bufferpool"
	"github.com/onvifcam/onvifd/internal/common"
	"github.com/onvifcam/onvifd/internal/config"
	"github.com/onvifcam/onvifd/internal/connpool"
	"github.com/onvifcam/onvifd/internal/hal"
	"github.com/onvifcam/onvifd/internal/httpserver"
	"github.com/onvifcam/onvifd/internal/logging"
	"github.com/onvifcam/onvifd/internal/onvifservices"
	"github.com/onvifcam/onvifd/internal/ratelimit"
	"github.com/onvifcam/onvifd/internal/reactor"
	"github.com/onvifcam/onvifd/internal/rtsp"
	"github.com/onvifcam/onvifd/internal/server"
	"github.com/onvifcam/onvifd/internal/soap"
	"github.com/onvifcam/onvifd/internal/streamrouter"
	"github.com/onvifcam/onvifd/internal/telemetry"
	"github.com/onvifcam/onvifd/internal/workerpool"
)

const op = "main"

const (
	defaultConfigPath    = "/etc/onvifd/onvifd.conf"
	defaultMemoryLimitMB = 20
	connBufferCount      = 256
	connBufferSize       = 16 * 1024
	workerPoolSize       = 8
	workerTaskTimeout    = 10 * time.Second
	sweepInterval        = 5 * time.Second

	// Rate limiting (SPEC_FULL.md §4.15): token buckets per client IP for
	// connection admission and Digest nonce issuance.
	connRateLimitPerSecond  = 5.0
	connRateLimitBurst      = 20
	nonceRateLimitPerSecond = 2.0
	nonceRateLimitBurst     = 5
	rateLimiterSweepPeriod  = 1 * time.Minute
)

func main() {
	configPath := defaultConfigPath
	if v := os.Getenv("ONVIFD_CONFIG"); v != "" {
		configPath = v
	}

	runtime := config.NewRuntime(nil, nil)
	storage := config.NewStorage(configPath, runtime, nil)
	runtime.SetPersistQueue(storage)
	if err := storage.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "config load failed, continuing with defaults: %v\n", err)
	}

	snap := runtime.Snapshot()
	if err := logging.Configure(logging.Config{
		Level:          snap.Logging.Level,
		Format:         snap.Logging.Format,
		FileEnabled:    snap.Logging.FileEnabled,
		FilePath:       snap.Logging.FilePath,
		MaxFileSizeMB:  int(snap.Logging.MaxFileSizeMB),
		BackupCount:    int(snap.Logging.BackupCount),
		ConsoleEnabled: snap.Logging.ConsoleEnabled,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logging configure failed: %v\n", err)
		os.Exit(1)
	}
	logger := logging.GetLogger(op)
	logger.Info("starting onvifd")

	if !runtime.UserExists("admin") {
		if err := runtime.RegisterUser("admin", "admin", "admin"); err != nil {
			logger.WithError(err).Warn("failed to bootstrap default admin user")
		}
	}

	guard, err := telemetry.NewMemoryGuard(defaultMemoryLimitMB<<20, 0.1, logging.GetLogger("telemetry"))
	if err != nil {
		logger.WithError(err).Fatal("failed to start memory guard")
	}
	go guard.Run(5 * time.Second)
	defer guard.Stop()

	pool := bufferpool.New(connBufferCount, connBufferSize)
	table := connpool.NewTable()
	workers := workerpool.New(workerPoolSize, workerTaskTimeout, logging.GetLogger("workerpool"))
	if err := workers.Start(context.Background()); err != nil {
		logger.WithError(err).Fatal("failed to start worker pool")
	}

	encoder := hal.NewFakeEncoder()
	motor := &hal.FakePTZMotor{}
	router := streamrouter.New(encoder, func(token string) bool {
		return profileExists(runtime.Snapshot(), token)
	})

	dispatcher := soap.NewDispatcher()
	serverHost := snap.Network.Host
	services := []interface {
		Register(*soap.Dispatcher) error
	}{
		onvifservices.NewDeviceService(runtime, serverHost),
		onvifservices.NewMediaService(runtime, serverHost),
		onvifservices.NewPTZService(runtime, motor),
		onvifservices.NewImagingService(runtime),
	}
	for _, svc := range services {
		if err := svc.Register(dispatcher); err != nil {
			logger.WithError(err).Fatal("failed to register ONVIF service")
		}
	}

	snapshotSource := &placeholderSnapshotSource{}
	snapshotHandler := onvifservices.NewSnapshotHandler(runtime, snapshotSource)
	healthHandler := onvifservices.NewHealthHandler(guard.Shedding)

	digest := auth.NewDigestAuthenticator(snap.Onvif.Realm, runtime.LookupHA1)
	nonceLimiter := ratelimit.New(nonceRateLimitPerSecond, nonceRateLimitBurst)
	digest.SetNonceLimiter(nonceLimiter)
	connLimiter := ratelimit.New(connRateLimitPerSecond, connRateLimitBurst)

	rateLimiterSweepTicker := time.NewTicker(rateLimiterSweepPeriod)
	defer rateLimiterSweepTicker.Stop()
	go func() {
		for now := range rateLimiterSweepTicker.C {
			connLimiter.Sweep(now)
			nonceLimiter.Sweep(now)
		}
	}()

	metrics := &httpserver.Metrics{}

	httpRouter := &daemonRouter{snapshot: snapshotHandler, health: healthHandler}

	listenFD, err := listenRaw(snap.Network.Host, int(snap.Network.HTTPPort))
	if err != nil {
		logger.WithError(err).Fatal("failed to bind HTTP listen socket")
	}

	var react *reactor.Reactor
	srv := server.New(listenFD, table, pool, workers, dispatcher, digest, httpRouter, connLimiter, metrics, logging.GetLogger("server"),
		func(fd int) error { return react.RegisterClient(fd) },
		func(fd int) { react.DeregisterClient(fd) },
	)
	react, err = reactor.New(listenFD, table, srv, logging.GetLogger("reactor"), sweepInterval)
	if err != nil {
		logger.WithError(err).Fatal("failed to create reactor")
	}

	rtspListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", snap.Network.Host, snap.Network.RTSPPort))
	if err != nil {
		logger.WithError(err).Fatal("failed to bind RTSP listener")
	}
	rtspTable := rtsp.NewTable(router, rtsp.CryptoIDGenerator{}, 60*time.Second)
	rtspEngine := rtsp.NewEngine(rtspListener, rtspTable, runtime, logging.GetLogger("rtsp"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		react.Run()
	}()
	go func() {
		defer wg.Done()
		rtspEngine.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down onvifd")

	if err := rtspEngine.Stop(); err != nil {
		logger.WithError(err).Warn("rtsp engine stop error")
	}
	if err := react.Stop(5 * time.Second); err != nil {
		logger.WithError(err).Warn("reactor stop error")
	}
	if err := common.StopWithTimeout(workers, 5*time.Second); err != nil {
		logger.WithError(err).Warn("worker pool stop error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

// listenRaw opens a nonblocking TCP listen socket with SO_REUSEADDR, per
// spec.md §4.4's reactor requiring a raw fd rather than a net.Listener.
func listenRaw(host string, port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, apperr.Wrap(apperr.KindIO, op, "socket() failed", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, apperr.Wrap(apperr.KindIO, op, "setsockopt(SO_REUSEADDR) failed", err)
	}
	addr := unix.SockaddrInet4{Port: port}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		addr.Addr = [4]byte{0, 0, 0, 0}
	} else {
		copy(addr.Addr[:], ip.To4())
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, apperr.Wrap(apperr.KindIO, op, "bind() failed", err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, apperr.Wrap(apperr.KindIO, op, "listen() failed", err)
	}
	return fd, nil
}

func profileExists(snap *config.Snapshot, token string) bool {
	for _, p := range snap.Profiles {
		if p.Token == token {
			return true
		}
	}
	return false
}

// placeholderSnapshotSource stands in for a real video capture pipeline,
// which this daemon's Non-goals exclude (no hardware driver is in scope).
// It returns a minimal valid JPEG so the GetSnapshotUri consumer path can
// be exercised end to end.
type placeholderSnapshotSource struct{}

var placeholderJPEG = []byte{0xFF, 0xD8, 0xFF, 0xD9} // SOI+EOI, zero-pixel JPEG

func (p *placeholderSnapshotSource) CaptureJPEG(profileToken string) ([]byte, error) {
	return placeholderJPEG, nil
}

// daemonRouter implements server.Router, mapping ONVIF service paths and
// the non-SOAP snapshot/health endpoints to their handlers.
type daemonRouter struct {
	snapshot *onvifservices.SnapshotHandler
	health   *onvifservices.HealthHandler
}

var servicePaths = map[string]string{
	"/onvif/device_service":  "device",
	"/onvif/media_service":   "media",
	"/onvif/ptz_service":     "ptz",
	"/onvif/imaging_service": "imaging",
}

func (r *daemonRouter) ServiceForPath(path string) (string, bool) {
	p := path
	if idx := strings.IndexByte(p, '?'); idx >= 0 {
		p = p[:idx]
	}
	service, ok := servicePaths[p]
	return service, ok
}

func (r *daemonRouter) ServeSnapshot(profileToken string) ([]byte, error) {
	return r.snapshot.Serve(profileToken)
}

func (r *daemonRouter) ServeHealth() string {
	return r.health.Serve()
}
