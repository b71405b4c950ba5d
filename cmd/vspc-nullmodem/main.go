// Command vspc-nullmodem is the alternate demo deployment from §6: instead
// of handing VM ports to the admin protocol, it cross-wires every pair of
// connecting VMs with a NullModemBackend so each VM's serial output is fed
// straight into the other's serial input.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vspc/vspc/internal/backend"
	"github.com/vspc/vspc/internal/options"
	"github.com/vspc/vspc/internal/server"
	"github.com/vspc/vspc/internal/vmport"
	"github.com/vspc/vspc/pkg/config"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func main() {
	cfg, err := config.Load("vspc-nullmodem")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.Log.ConfigureZerolog()

	srv := server.New(cfg, options.UnimplementedTLSProvider{}, log.Logger)

	vmLis, err := net.Listen("tcp", cfg.Listen.VMAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Listen.VMAddr).Msg("failed to bind vm listener")
	}

	log.Info().Str("vm_addr", cfg.Listen.VMAddr).Msg("starting vspc-nullmodem")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeVM(ctx, vmLis) }()
	go pairPorts(ctx, srv.Ports(), log.Logger)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("listener failed")
	}
	cancel()
	log.Info().Msg("vspc-nullmodem stopped")
}

// pairer tracks which VMPorts this process has already cross-wired, so a
// port is only paired once even though the registry is polled repeatedly.
type pairer struct {
	mu     sync.Mutex
	paired map[string]bool
}

// pairPorts polls the registry for newly-appeared, unpaired VMPorts and
// cross-wires them two at a time with a NullModemBackend, matching the
// teacher's preference for simple polling loops over the local agent's
// reconnect supervisor (local-agent/cmd/agent/main.go) rather than an
// event-subscription mechanism the registry doesn't expose.
func pairPorts(ctx context.Context, ports *vmport.Registry, log zerolog.Logger) {
	p := &pairer{paired: make(map[string]bool)}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pairWaiting(ports, log)
		}
	}
}

func (p *pairer) pairWaiting(ports *vmport.Registry, log zerolog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var waiting []*vmport.VMPort
	for _, port := range ports.List() {
		if p.paired[port.PortID] {
			continue
		}
		if port.VEO() == nil {
			continue
		}
		waiting = append(waiting, port)
	}

	for len(waiting) >= 2 {
		a, b := waiting[0], waiting[1]
		waiting = waiting[2:]

		if _, _, err := backend.NewNullModemPair(a, b); err != nil {
			log.Warn().Err(err).Str("a", a.PortID).Str("b", b.PortID).Msg("failed to pair ports")
			continue
		}
		p.paired[a.PortID] = true
		p.paired[b.PortID] = true
		log.Info().Str("a", a.PortID).Str("b", b.PortID).Msg("paired ports via null-modem")
	}
}
