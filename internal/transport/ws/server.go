package ws

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging/network"
)

const (
	visitorIdle      = time.Minute
	visitorPruneSize = 1024
)

type ServerConfig struct {
	// MaxPacketSize bounds inbound packets; larger messages drop the peer.
	MaxPacketSize int
	WriteTimeout  time.Duration
	SendBuffer    int
	// HandshakeRate and HandshakeBurst throttle upgrades per remote host.
	HandshakeRate  rate.Limit
	HandshakeBurst int
	Publisher      logging.Publisher
}

// Server is a transport.Host accepting websocket upgrades as an http.Handler.
type Server struct {
	cfg      ServerConfig
	pub      logging.Publisher
	upgrader websocket.Upgrader
	events   eventQueue

	mu       sync.Mutex
	peers    map[*Peer]struct{}
	visitors map[string]*visitor
	closed   bool
	now      func() time.Time
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.HandshakeRate <= 0 {
		cfg.HandshakeRate = rate.Limit(2)
	}
	if cfg.HandshakeBurst <= 0 {
		cfg.HandshakeBurst = 4
	}
	return &Server{
		cfg: cfg,
		pub: logging.OrNop(cfg.Publisher),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		peers:    make(map[*Peer]struct{}),
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.allow(remoteHost(r.RemoteAddr)) {
		s.reject(r, "handshake rate exceeded")
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.reject(r, err.Error())
		return
	}

	p := newPeer(conn, r.RemoteAddr, s.cfg.WriteTimeout, s.cfg.SendBuffer)
	if s.cfg.MaxPacketSize > 0 {
		conn.SetReadLimit(int64(s.cfg.MaxPacketSize) + 1)
	}
	if !s.register(p) {
		conn.Close()
		return
	}
	s.events.push(transport.Event{Kind: transport.EventConnect, Peer: p})
	go p.writePump()
	go func() {
		p.readPump(&s.events, false)
		s.unregister(p)
	}()
}

func (s *Server) reject(r *http.Request, reason string) {
	network.HandshakeRejected(r.Context(), s.pub, logging.StreamRef("ws"), network.HandshakePayload{
		Address: r.RemoteAddr,
		Reason:  reason,
	}, nil)
}

func (s *Server) allow(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if len(s.visitors) >= visitorPruneSize {
		for key, v := range s.visitors {
			if now.Sub(v.seen) > visitorIdle {
				delete(s.visitors, key)
			}
		}
	}
	v, ok := s.visitors[host]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.cfg.HandshakeRate, s.cfg.HandshakeBurst)}
		s.visitors[host] = v
	}
	v.seen = now
	return v.limiter.AllowN(now, 1)
}

func (s *Server) register(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.peers[p] = struct{}{}
	return true
}

func (s *Server) unregister(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, p)
}

// Poll implements transport.Host.
func (s *Server) Poll() (transport.Event, bool) {
	return s.events.pop()
}

// Pending reports the number of undrained events.
func (s *Server) Pending() int {
	return s.events.len()
}

// Close disconnects every peer and stops reporting events.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := make([]*Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	s.events.close()
	for _, p := range peers {
		p.Disconnect()
	}
	return nil
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
