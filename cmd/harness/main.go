// Command harness is a line-delimited TCP front end standing in for the
// trusted host process: each line read from a connection is forwarded
// verbatim to the core's Call entry point, and the reply envelope is
// written back terminated by a newline. It exists for manual testing
// and local integration exercises, not as a production transport — the
// real host embeds internal/host directly as a library.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arma-extdb/extdb-core/internal/config"
	"github.com/arma-extdb/extdb-core/internal/health"
	"github.com/arma-extdb/extdb-core/internal/host"
)

var (
	configPath = flag.String("config", "configs/extdb.yaml", "Path to core configuration file")
	listenAddr = flag.String("listen", "127.0.0.1:7777", "Address the line-delimited harness listens on")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[harness] starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[harness] failed to load configuration: %v", err)
	}

	os.Setenv("EXTDB_REDIS_ADDR", cfg.Redis.Addr)

	core := host.New(cfg)
	defer core.Close()

	checker := health.NewChecker(cfg)
	defer checker.Close()
	healthServer := checker.ServeHTTP(context.Background())

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Core.MetricsPort),
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[harness] metrics listening on :%d/metrics", cfg.Core.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[harness] metrics server error: %v", err)
		}
	}()

	srv := &server{core: core, done: make(chan struct{})}
	if err := srv.start(*listenAddr); err != nil {
		log.Fatalf("[harness] failed to listen on %s: %v", *listenAddr, err)
	}
	log.Printf("[harness] listening on %s", *listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[harness] received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	srv.stop(shutdownCtx)
	_ = healthServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	log.Println("[harness] shutdown complete")
}

// server is the line-delimited accept loop, shaped after the teacher's
// TDS proxy accept loop (per-connection goroutine, WaitGroup-bound
// graceful stop, closed-listener detection).
type server struct {
	core     *host.Core
	listener net.Listener

	active atomic.Int64
	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *server) start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.acceptLoop(ctx)
	return nil
}

func (s *server) acceptLoop(ctx context.Context) {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if isListenerClosed(err) {
				return
			}
			log.Printf("[harness] accept error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		s.active.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.active.Add(-1)
			s.handleConn(conn)
		}()
	}
}

func (s *server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		reply := s.core.Call(line)
		if _, err := writer.WriteString(reply + "\n"); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func (s *server) stop(ctx context.Context) {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}

	doneCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-ctx.Done():
		log.Println("[harness] shutdown timeout — some connections may have been interrupted")
	}
}

func isListenerClosed(err error) bool {
	opErr, ok := err.(*net.OpError)
	return ok && opErr.Err.Error() == "use of closed network connection"
}
