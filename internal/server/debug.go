package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vspc/vspc/internal/vmport"
)

// NewDebugRouter builds the debug HTTP surface (§6 [NEW]): /healthz,
// /status (JSON VMPort list + stats snapshot, modeled on the teacher's
// /health and /status debug endpoints) and /metrics (promhttp). When
// webconsoleEnabled, a read-only WebSocket viewer is also mounted.
func (s *Server) NewDebugRouter(webconsoleEnabled bool) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods("GET")

	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if webconsoleEnabled {
		upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		r.HandleFunc("/console/{port_id}/ws", func(w http.ResponseWriter, r *http.Request) {
			s.handleConsoleWebSocket(w, r, &upgrader)
		}).Methods("GET")
	}

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ports := s.ports.List()
	portStatus := make([]map[string]interface{}, 0, len(ports))
	for _, p := range ports {
		portStatus = append(portStatus, map[string]interface{}{
			"port_id":       p.PortID,
			"vc_uuid":       p.VCUUID,
			"vm_name":       p.VMName,
			"listening_uri": p.ListeningURI,
			"connected":     p.VEO() != nil,
		})
	}

	snap := s.counters.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ports": portStatus,
		"stats": snap,
	})
}

// handleConsoleWebSocket attaches a read-only consoleViewer backend to the
// named VMPort and streams its bytes over a WebSocket, grounded in the teacher's
// SOL-over-WebSocket bridging idiom (gateway/internal/streaming,
// local-agent/pkg/sol).
func (s *Server) handleConsoleWebSocket(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) {
	portID := mux.Vars(r)["port_id"]
	port, ok := s.ports.Get(portID)
	if !ok {
		http.Error(w, "port not found", http.StatusNotFound)
		return
	}

	viewer := &consoleViewer{out: make(chan []byte, 64)}
	if err := port.Attach(vmport.ReadOnly, viewer); err != nil {
		http.Error(w, "attach failed: "+err.Error(), http.StatusConflict)
		return
	}
	defer port.Detach(viewer)

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer wsConn.Close()

	log := s.log.With().Str("port_id", portID).Logger()
	log.Info().Msg("console viewer attached")
	defer log.Info().Msg("console viewer detached")

	for chunk := range viewer.out {
		wsConn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := wsConn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			return
		}
	}
}

// consoleViewer relays inbound VM bytes to a WebSocket writer goroutine
// without blocking the VMPort fan-out (§4.11's "a single misbehaving
// backend must not stop fan-out to the others").
type consoleViewer struct {
	out chan []byte
}

func (v *consoleViewer) ReceiveBytes(data []byte) error {
	cp := append([]byte(nil), data...)
	select {
	case v.out <- cp:
	default:
		// slow consumer: drop rather than block the VM connection.
	}
	return nil
}
