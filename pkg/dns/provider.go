package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/miekg/dns"

	"github.com/cuemby/wafflemaker/pkg/log"
)

const (
	// DefaultListenAddr is the address the authoritative server listens on.
	DefaultListenAddr = "127.0.0.1:5353"

	// DefaultZone is the default search domain for reconciled services.
	DefaultZone = "services.internal"

	// recordTTL is the TTL advertised on every A record. Short, since
	// addresses change on every SwapDNS.
	recordTTL = 10
)

// Provider is the DNS reconciler's contract against the authoritative zone
// (§4.6): upsert a hostname's address on SwapDNS, delete it on retirement.
type Provider interface {
	Upsert(ctx context.Context, hostname string, addr net.IP) error
	Delete(ctx context.Context, hostname string) error
}

// Server is an authoritative miekg/dns server over an in-memory zone,
// forwarding anything outside that zone upstream.
type Server struct {
	mu      sync.RWMutex
	records map[string]net.IP // FQDN -> address

	zone       string
	listenAddr string
	upstream   []string

	dnsServer *dns.Server
	running   bool
	runMu     sync.Mutex
}

// Config holds DNS server configuration.
type Config struct {
	ListenAddr string
	Zone       string
	Upstream   []string
}

// NewServer builds a Server. Zero-value Config fields fall back to the
// package defaults.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.Zone == "" {
		cfg.Zone = DefaultZone
	}
	if len(cfg.Upstream) == 0 {
		cfg.Upstream = []string{"8.8.8.8:53"}
	}

	return &Server{
		records:    make(map[string]net.IP),
		zone:       cfg.Zone,
		listenAddr: cfg.ListenAddr,
		upstream:   cfg.Upstream,
	}
}

// Upsert sets hostname's address, replacing any prior value.
func (s *Server) Upsert(ctx context.Context, hostname string, addr net.IP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[fqdn(hostname)] = addr
	return nil
}

// Delete removes hostname. Deleting an absent hostname is not an error.
func (s *Server) Delete(ctx context.Context, hostname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, fqdn(hostname))
	return nil
}

func (s *Server) lookup(name string) (net.IP, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ip, ok := s.records[fqdn(name)]
	return ip, ok
}

func fqdn(name string) string {
	name = strings.TrimSuffix(name, ".")
	return name + "."
}

// Start brings up the UDP listener. It blocks until ctx is cancelled or the
// server fails to start.
func (s *Server) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("dns server already running")
	}
	s.running = true
	s.runMu.Unlock()

	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleQuery)

	s.dnsServer = &dns.Server{Addr: s.listenAddr, Net: "udp", Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := s.dnsServer.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
		return fmt.Errorf("start dns server: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if s.dnsServer != nil {
		return s.dnsServer.Shutdown()
	}
	return nil
}

func (s *Server) handleQuery(w dns.ResponseWriter, r *dns.Msg) {
	msg := &dns.Msg{}
	msg.SetReply(r)
	msg.Authoritative = true

	for _, q := range r.Question {
		if q.Qtype != dns.TypeA {
			s.forward(w, r)
			return
		}

		ip, ok := s.lookup(q.Name)
		if !ok {
			s.forward(w, r)
			return
		}

		msg.Answer = append(msg.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: recordTTL},
			A:   ip,
		})
	}

	if err := w.WriteMsg(msg); err != nil {
		log.Logger.Error().Err(err).Str("component", "dns").Msg("write response")
	}
}

func (s *Server) forward(w dns.ResponseWriter, r *dns.Msg) {
	client := &dns.Client{Net: "udp"}

	for _, upstream := range s.upstream {
		resp, _, err := client.Exchange(r, upstream)
		if err != nil {
			continue
		}
		if err := w.WriteMsg(resp); err != nil {
			log.Logger.Error().Err(err).Str("component", "dns").Msg("write forwarded response")
		}
		return
	}

	fail := &dns.Msg{}
	fail.SetReply(r)
	fail.Rcode = dns.RcodeServerFailure
	if err := w.WriteMsg(fail); err != nil {
		log.Logger.Error().Err(err).Str("component", "dns").Msg("write servfail")
	}
}
