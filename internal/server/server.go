// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package server implements the case-study workload's network shim: a TCP
// listener that decodes line-protocol requests and drives them through the
// engine's dual-execution entry point against a shared key/value store.
//
// The original implementation multiplexes every connection on a port
// through a single epoll loop running on one AppThread, so that one worker
// (and its one paired validator) serves many connections sequentially.
// Go's netpoller already does that multiplexing under the runtime
// scheduler — hand-rolling epoll on top of it would fight the scheduler
// for no benefit — so this port uses the idiomatic goroutine-per-connection
// model instead. Since a closure.Worker's log allocator is not safe for
// concurrent use by more than one goroutine at a time (spec.md §4.3: one
// allocator per thread), each accepted connection gets its own
// runtime.Engine — its own worker, paired validator goroutine, and handoff
// queue — all operating against the one Store shared process-wide.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/kianostad/scee/internal/engine/arena"
	"github.com/kianostad/scee/internal/engine/closure"
	"github.com/kianostad/scee/internal/engine/runtime"
	"github.com/kianostad/scee/internal/monitoring/metrics"
	"github.com/kianostad/scee/internal/protocol"
	"github.com/kianostad/scee/internal/storage/kvstore"
)

// Config configures the server's listeners and the per-connection engines
// it spawns.
type Config struct {
	// Host and BasePort identify the first listener; NumPorts consecutive
	// ports starting at BasePort are bound, mirroring the original
	// implementation's main_fn(port, num_servers).
	Host     string
	BasePort int
	NumPorts int

	Engine runtime.Config
}

// Server owns the shared store and the listeners bound against it.
type Server struct {
	store  *kvstore.Store
	cfg    Config
	metric *metrics.Metrics

	mu        sync.Mutex
	listeners []net.Listener
}

// New creates a Server backed by store, which must outlive every
// connection the server handles. cfg.Engine.ValidationCPUSet, if set, is
// parsed once here rather than left to each connection's lazy pin call: a
// malformed cpuset is a configuration error, and spec.md requires those be
// reported and aborted at startup rather than discovered per connection
// (mirrored by cmd/sceed's eager check of the work cpuset via AppThread).
func New(store *kvstore.Store, cfg Config) (*Server, error) {
	if cfg.NumPorts <= 0 {
		cfg.NumPorts = 1
	}
	if cfg.Engine.ValidationCPUSet != "" {
		if _, err := runtime.ParseCPUSet(cfg.Engine.ValidationCPUSet); err != nil {
			return nil, fmt.Errorf("server: invalid validation cpuset %q: %w", cfg.Engine.ValidationCPUSet, err)
		}
	}
	return &Server{store: store, cfg: cfg, metric: metrics.NewMetrics()}, nil
}

// Metrics returns the server-level metrics sink. Each connection's engine
// keeps its own validation metrics (see runtime.Engine.Metrics); this sink
// instead counts events with no per-engine home, such as protocol errors.
func (s *Server) Metrics() *metrics.Metrics { return s.metric }

// Close shuts down the server-level metrics sink. Call it after
// ListenAndServe has returned.
func (s *Server) Close() { s.metric.Close() }

// ListenAndServe binds cfg.NumPorts consecutive listeners starting at
// cfg.BasePort and serves connections on each until ctx is canceled. It
// returns once every listener's accept loop has exited.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, s.cfg.NumPorts)

	for i := 0; i < s.cfg.NumPorts; i++ {
		port := s.cfg.BasePort + i
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("server: failed to listen on %s: %w", addr, err)
		}

		s.mu.Lock()
		s.listeners = append(s.listeners, ln)
		s.mu.Unlock()

		log.Printf("scee: listening on %s", addr)

		wg.Add(1)
		go func(ln net.Listener) {
			defer wg.Done()
			errCh <- s.acceptLoop(ctx, ln)
		}(ln)
	}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for _, ln := range s.listeners {
			ln.Close()
		}
		s.mu.Unlock()
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn owns one connection end to end: it stands up a private
// engine, serves requests until the connection closes or a quit command
// arrives, then tears the engine down.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	engine := runtime.New(s.cfg.Engine)
	if err := engine.Run(); err != nil {
		log.Printf("scee: failed to start connection engine: %v", err)
		return
	}
	defer engine.Stop()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		engine.Arena.Reset()
		reply, closeConn := s.dispatch(engine.Worker, engine.Arena, line)
		if len(reply) > 0 {
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
		if closeConn {
			return
		}
	}
}

// dispatch decodes one request line and runs it through the engine,
// returning the reply line to send, built out of a's scratch space rather
// than a freshly allocated string. closeConn reports whether the
// connection should close afterward (a quit command).
func (s *Server) dispatch(w *closure.Worker, a *arena.Arena, line string) (reply []byte, closeConn bool) {
	body, _, err := protocol.ConsumePrefix(line)
	if err != nil {
		s.metric.RecordError("protocol")
		return appendLiteral(a, protocol.ReplyError), false
	}

	cmd, err := protocol.ParseCommand(body)
	if err != nil {
		s.metric.RecordError("protocol")
		return appendLiteral(a, protocol.ReplyError), false
	}

	switch cmd.Verb {
	case protocol.VerbQuit:
		return nil, true

	case protocol.VerbGet:
		v := closure.Run2(w, kvstore.TagGet, s.store.AppGet, s.store.ValGet, kvstore.GetArgs{Key: cmd.Key})
		if v.Tombstone {
			return appendLiteral(a, protocol.ReplyNotFound), false
		}
		out := protocol.AppendValueReply(a.Claim(), v.Val)
		a.Advance(len(out))
		return out, false

	case protocol.VerbSet:
		// Whether to reply CREATED or STORED is decided by a plain,
		// unvalidated existence check before the closure runs — see
		// AppSet/ValSet in kvstore for why that classification is kept out
		// of the validated return value.
		existed := !s.store.GetValue(cmd.Key).Tombstone
		closure.Run2(w, kvstore.TagSet, s.store.AppSet, s.store.ValSet, kvstore.SetArgs{Key: cmd.Key, Val: cmd.Val})
		if existed {
			return appendLiteral(a, protocol.ReplyStored), false
		}
		return appendLiteral(a, protocol.ReplyCreated), false

	case protocol.VerbDel:
		ret := closure.Run2(w, kvstore.TagDel, s.store.AppDel, s.store.ValDel, kvstore.DelArgs{Key: cmd.Key})
		if ret == kvstore.NotFound {
			return appendLiteral(a, protocol.ReplyNotFound), false
		}
		return appendLiteral(a, protocol.ReplyDeleted), false

	default:
		return appendLiteral(a, protocol.ReplyError), false
	}
}

// appendLiteral copies a fixed reply string into arena-backed scratch
// space, so every reply path — not just VALUE lines — avoids a per-request
// heap allocation.
func appendLiteral(a *arena.Arena, s string) []byte {
	buf := a.Alloc(len(s))
	copy(buf, s)
	return buf
}
