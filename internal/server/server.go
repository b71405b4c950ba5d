// Package server wires the protocol layer (internal/conn, internal/options)
// to net.Listeners: the VM-facing listener, the admin listener, and the
// debug HTTP surface, following the teacher's cmd/gateway bootstrap shape
// (config load -> zerolog setup -> router -> ListenAndServe) adapted to
// three concurrent listeners instead of one HTTP server.
package server

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/rs/zerolog"

	"github.com/vspc/vspc/internal/conn"
	"github.com/vspc/vspc/internal/options"
	"github.com/vspc/vspc/internal/stats"
	"github.com/vspc/vspc/internal/telnet"
	"github.com/vspc/vspc/internal/vmotion"
	"github.com/vspc/vspc/internal/vmport"
	"github.com/vspc/vspc/pkg/config"
)

// Server owns the process-wide shared state (§3/§5: VMPort registry,
// vMotion broker, stats) and the listener loops that feed it.
type Server struct {
	cfg      *config.Config
	log      zerolog.Logger
	ports    *vmport.Registry
	broker   *vmotion.Broker
	counters *stats.Counters
	tls      options.TLSProvider
}

// New builds a Server. tlsProvider may be options.UnimplementedTLSProvider{}
// when no certificate material is configured; AUTHENTICATION then fails
// with ConfigError only if a VM actually negotiates SSL.
func New(cfg *config.Config, tlsProvider options.TLSProvider, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		ports:    vmport.NewRegistry(),
		broker:   vmotion.NewBroker(),
		counters: stats.New(),
		tls:      tlsProvider,
	}
}

// Ports exposes the VMPort registry, for callers outside the server such as
// cmd/vspc-nullmodem's pairing loop.
func (s *Server) Ports() *vmport.Registry { return s.ports }

// Counters exposes the stats counters for the debug /status endpoint.
func (s *Server) Counters() *stats.Counters { return s.counters }

// ServeVM accepts connections on lis and runs the VM-facing protocol: BINARY
// and SGA are pre-registered by conn.New; AUTHENTICATION, COM-PORT and the
// VMware-Extension are added here.
func (s *Server) ServeVM(ctx context.Context, lis net.Listener) error {
	return s.acceptLoop(ctx, lis, "vm", s.handleVMConnection)
}

// ServeAdmin accepts connections on lis and runs the vSPC-Admin protocol.
func (s *Server) ServeAdmin(ctx context.Context, lis net.Listener) error {
	return s.acceptLoop(ctx, lis, "admin", s.handleAdminConnection)
}

func (s *Server) acceptLoop(ctx context.Context, lis net.Listener, kind string, handle func(context.Context, net.Conn)) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		netConn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		s.counters.ConnectionReceived(kind)
		go handle(ctx, netConn)
	}
}

func (s *Server) handleVMConnection(ctx context.Context, netConn net.Conn) {
	defer s.counters.ConnectionClosed("vm")
	defer netConn.Close()

	c := conn.New(netConn, s.log)
	log := c.Log

	vmx := options.NewVMwareExtensionServer(c, s.ports, s.broker, s.counters, s.cfg.VMwareExtension.ServiceURI, log)
	_ = c.Register(vmx)
	_ = c.Register(options.NewAuthenticationServer(c, s.tls, log))
	_ = c.Register(options.NewComPort(options.NopSerialPortController{Log: log}))

	defer s.teardownVM(vmx, log)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, err := c.Next()
		if err != nil {
			log.Debug().Err(err).Msg("vm connection closed")
			return
		}
		switch ev.Kind {
		case telnet.EventData:
			if port := vmx.Port(); port != nil {
				s.counters.BytesRx("vm", len(ev.Data))
				if err := port.ReceiveBytes(vmx, ev.Data); err != nil {
					log.Warn().Err(err).Msg("receive_bytes rejected")
				}
			}
		case telnet.EventControl:
			log.Debug().Uint8("control", ev.Control).Msg("control function")
		}
	}
}

// teardownVM implements §7's teardown sequence: drop VMPort ownership only
// if still veo, drop any owned vMotion broker entry. The transport is
// closed by the caller's defer.
func (s *Server) teardownVM(vmx *options.VMwareExtension, log zerolog.Logger) {
	s.broker.RemoveBySource(vmx)
	port := vmx.Port()
	if port == nil {
		return
	}
	if port.VEO() == vmx {
		s.ports.Remove(port.PortID)
		port.SetVEO(nil)
	}
	log.Info().Str("port_id", port.PortID).Msg("vm connection torn down")
}

func (s *Server) handleAdminConnection(ctx context.Context, netConn net.Conn) {
	defer s.counters.ConnectionClosed("admin")
	defer netConn.Close()

	c := conn.New(netConn, s.log)
	log := c.Log

	admin := options.NewAdminServer(c, s.ports, log)
	_ = c.Register(admin)

	defer func() {
		if port := admin.Port(); port != nil {
			port.Detach(admin)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, err := c.Next()
		if err != nil {
			log.Debug().Err(err).Msg("admin connection closed")
			return
		}
		if ev.Kind == telnet.EventData {
			s.counters.BytesRx("admin", len(ev.Data))
			if err := admin.Forward(ev.Data); err != nil {
				log.Warn().Err(err).Msg("admin forward failed")
			}
		}
	}
}

// StartTLSListener is a convenience for listening with TLS from the first
// byte, out-of-band of plain TCP accept (kept distinct from the in-place
// StartTLS upgrade §4.6 performs mid-connection). Nothing in this repository
// calls it.
func StartTLSListener(addr string, cfg *tls.Config) (net.Listener, error) {
	return tls.Listen("tcp", addr, cfg)
}
