package stratumv2

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/btcindex/txstratum/internal/apperr"
	"github.com/btcindex/txstratum/internal/tlv"
)

// framesPerSecond and frameBurst bound how fast a single connection may
// submit frames, defending against a miner flooding shares (§5).
const (
	framesPerSecond = 200
	frameBurst      = 400
)

// ShareValidator decides whether a submitted share meets its channel's
// target. The pool core has no notion of proof-of-work verification
// itself; this is supplied by the caller wiring the server to a real
// block-template provider.
type ShareValidator func(endpoint string, msg SubmitShare) bool

// Server listens for Stratum V2 connections and dispatches frames into
// a Pool, one goroutine per connection, mirroring the teacher's
// one-task-per-connection model.
type Server struct {
	pool      *Pool
	validator ShareValidator
	logger    *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
	wg       sync.WaitGroup
	closed   bool
}

// NewServer constructs a Server around a fresh Pool.
func NewServer(validator ShareValidator, logger *zap.Logger) *Server {
	return &Server{
		pool:      NewPool(logger),
		validator: validator,
		logger:    logger,
		conns:     make(map[string]net.Conn),
	}
}

// Pool returns the underlying protocol state machine, for SetTemplate
// callers and tests.
func (s *Server) Pool() *Pool {
	return s.pool
}

// Start begins listening on addr and accepting connections in a
// background goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn.RemoteAddr().String()] = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn.RemoteAddr().String())
		s.mu.Unlock()
		conn.Close()
	}()

	endpoint := conn.RemoteAddr().String()
	limiter := rate.NewLimiter(framesPerSecond, frameBurst)
	codec := tlv.NewCodec(conn)

	for {
		if err := limiter.Wait(context.Background()); err != nil {
			return
		}

		tag, payload, err := codec.ReadFrame()
		if err != nil {
			if err != io.EOF && s.logger != nil {
				s.logger.Debug("stratumv2: read frame failed", zap.String("endpoint", endpoint), zap.Error(err))
			}
			s.pool.Disconnect(endpoint)
			return
		}

		resp, respTag, err := s.dispatch(endpoint, tag, payload)
		if err != nil {
			if s.logger != nil {
				s.logger.Debug("stratumv2: dispatch failed", zap.String("endpoint", endpoint), zap.Error(err))
			}
			continue
		}
		if resp == nil {
			continue
		}
		if err := codec.WriteFrame(respTag, resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(endpoint string, tag uint16, payload []byte) (response []byte, respTag uint16, err error) {
	switch tag {
	case TagSetupConnection:
		var msg SetupConnection
		if err := cbor.Unmarshal(payload, &msg); err != nil {
			return nil, 0, apperr.MalformedFramef("decode SetupConnection: %v", err)
		}
		msg.Endpoint = endpoint
		result, err := s.pool.HandleSetupConnection(msg)
		if err != nil {
			return nil, 0, err
		}
		out, err := cbor.Marshal(result)
		return out, TagSetupConnectionSuccess, err

	case TagOpenMiningChannel:
		var msg OpenMiningChannel
		if err := cbor.Unmarshal(payload, &msg); err != nil {
			return nil, 0, apperr.MalformedFramef("decode OpenMiningChannel: %v", err)
		}
		result, err := s.pool.HandleOpenChannel(endpoint, msg)
		if err != nil {
			return nil, 0, err
		}
		out, err := cbor.Marshal(result)
		return out, TagOpenChannelSuccess, err

	case TagSubmitShare:
		var msg SubmitShare
		if err := cbor.Unmarshal(payload, &msg); err != nil {
			return nil, 0, apperr.MalformedFramef("decode SubmitShare: %v", err)
		}
		valid := s.validator == nil || s.validator(endpoint, msg)
		result, _ := s.pool.SubmitShare(endpoint, msg, valid)
		out, err := cbor.Marshal(result)
		return out, TagSubmitShareResult, err

	default:
		return nil, 0, apperr.MalformedFramef("unknown tag %d", tag)
	}
}

// SessionCount returns the number of live connections.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop closes the listener and every open connection, then waits for
// per-connection goroutines to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
