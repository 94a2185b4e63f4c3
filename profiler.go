// Copyright (c) 2024-2025 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// portToLocalHostAddr prepends a default host of 127.0.0.1 when the provided
// address is solely a port number.
func portToLocalHostAddr(addr string) string {
	if _, err := strconv.Atoi(addr); err == nil {
		addr = net.JoinHostPort("127.0.0.1", addr)
	}
	return addr
}

// validateListenAddr ensures the provided address is of the form "host:port"
// and that the port is between 1024 and 65535.
func validateListenAddr(addr string) error {
	// Ensure the address is valid host:port syntax.
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	// Ensure the port is in range.
	if port, _ := strconv.Atoi(portStr); port < 1024 || port > 65535 {
		str := "address %q: port must be between 1024 and 65535"
		return fmt.Errorf(str, addr)
	}

	return nil
}

// profileHandler returns a handler that serves the pprof profiling endpoints
// and redirects the root to them.
func profileHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))
	return mux
}

// metricsHandler returns a handler that serves the prometheus metrics
// registered with the default registry.
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.RedirectHandler("/metrics", http.StatusSeeOther))
	return mux
}

// httpServer provides facilities for starting and stopping an HTTP server
// that serves a fixed handler on a single listen address.  It is used for both
// the profiling and the metrics endpoints.
type httpServer struct {
	name    string
	handler http.Handler

	wg       sync.WaitGroup
	mtx      sync.Mutex
	server   *http.Server
	listener string
}

// newHTTPServer returns an HTTP server with the given name, used in log
// messages, that serves the provided handler once started.
func newHTTPServer(name string, handler http.Handler) *httpServer {
	return &httpServer{name: name, handler: handler}
}

// Start binds a listener to the provided address and launches an HTTP server
// that handles requests in the background using that listener.  An error is
// returned when the listener fails to bind.
//
// It has no effect when the server is already running, so it may be called
// multiple times without error.
//
// It is the caller's responsibility to call the Stop method to shutdown the
// server.
func (s *httpServer) Start(listenAddr string) error {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	// Nothing to do when the server is already running.
	if s.server != nil {
		return nil
	}

	listenAddr = portToLocalHostAddr(listenAddr)
	if err := validateListenAddr(listenAddr); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", listenAddr, err)
	}
	s.listener = listener.Addr().String()

	s.server = &http.Server{
		Addr:              listenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: time.Second * 3,
	}
	xecdLog.Infof("%s server listening on %s", s.name, listener.Addr())
	s.wg.Add(1)
	go func(httpServer *http.Server) {
		defer s.wg.Done()

		err := httpServer.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			xecdLog.Errorf("%s server listening on %s exited with "+
				"unexpected error: %v", s.name, listener.Addr(), err)
		}
	}(s.server)

	return nil
}

// Stop immediately closes the active listener and any connections to the
// server.
//
// It has no effect when the server is not running, so it may be called multiple
// times without error.
func (s *httpServer) Stop() error {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	// Nothing to do when the server is not running.
	if s.server == nil {
		return nil
	}

	err := s.server.Close()
	s.server = nil
	s.listener = ""
	s.wg.Wait()
	if err != nil {
		xecdLog.Errorf("%s server stopped with unexpected error: %v", s.name,
			err)
		return err
	}

	xecdLog.Infof("%s server stopped", s.name)
	return nil
}

// Listener returns the address the server is currently listening on or an
// empty string when it is not running.
func (s *httpServer) Listener() string {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	return s.listener
}
