package options

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vspc/vspc/internal/telnet"
	"github.com/vspc/vspc/internal/telnet/option"
	"github.com/vspc/vspc/internal/vmotion"
	"github.com/vspc/vspc/internal/vmport"
)

// OptionVMwareExtension is the VMware serial-proxy extension (§4.8).
const OptionVMwareExtension byte = 232

const (
	vmwKnownSuboptions1 byte = 0
	vmwKnownSuboptions2 byte = 1

	vmwVMotionBegin    byte = 40
	vmwVMotionGoAhead  byte = 41
	vmwVMotionNotNow   byte = 43
	vmwVMotionPeer     byte = 44
	vmwVMotionPeerOK   byte = 45
	vmwVMotionComplete byte = 46
	vmwVMotionAbort    byte = 48

	vmwDoProxy   byte = 70
	vmwWillProxy byte = 71
	vmwWontProxy byte = 73

	vmwVMVCUUID     byte = 80
	vmwGetVMVCUUID  byte = 81
	vmwVMName       byte = 82
	vmwGetVMName    byte = 83
)

// allKnownSuboptions is announced by both sides on enable, excluding
// KNOWN_SUBOPTIONS_1 itself (§4.8).
var allKnownSuboptions = []byte{
	vmwKnownSuboptions2,
	vmwVMotionBegin, vmwVMotionGoAhead, vmwVMotionNotNow, vmwVMotionPeer,
	vmwVMotionPeerOK, vmwVMotionComplete, vmwVMotionAbort,
	vmwDoProxy, vmwWillProxy, vmwWontProxy,
	vmwVMVCUUID, vmwGetVMVCUUID, vmwVMName, vmwGetVMName,
}

type vmRole int

const (
	vmServer vmRole = iota
	vmClient
)

// ByteSender is the in-band byte path to the VM — the owning Connection's
// SendBytes, distinct from option.Sender's negotiation/subnegotiation
// channel. It is what makes VMwareExtension satisfy vmport.ConnectionOwner.
type ByteSender interface {
	SendBytes(data []byte) error
}

// StatsRecorder receives vMotion lifecycle counts (§3). Implementations
// live in internal/stats; this interface is declared here, consumer-side,
// so options never imports stats directly.
type StatsRecorder interface {
	VMotionBegin()
	VMotionPeer()
	VMotionComplete()
	VMotionAbort()
	VMotionAbandon()
}

type pendingMigration struct {
	sequence []byte
	secret   []byte
}

type peerInfo struct {
	source   *VMwareExtension
	sequence []byte
	key      string
}

// VMwareExtension implements option 232 (§4.8), both the production server
// role (accepts them=true, drives the identity check and vMotion state
// machine) and the test-stub client role.
type VMwareExtension struct {
	option.BaseOption

	role       vmRole
	log        zerolog.Logger
	connBytes  ByteSender
	registry   *vmport.Registry
	broker     *vmotion.Broker
	stats      StatsRecorder
	serviceURI string // configured DO_PROXY match target, server role only

	vcUUID    string
	vmName    string
	willProxy bool
	portLabel string
	port      *vmport.VMPort

	vmotion     *pendingMigration
	vmotionPeer *peerInfo
}

// NewVMwareExtensionServer builds the server-side handler for one VM-facing
// Connection.
func NewVMwareExtensionServer(connBytes ByteSender, registry *vmport.Registry, broker *vmotion.Broker, stats StatsRecorder, serviceURI string, log zerolog.Logger) *VMwareExtension {
	v := &VMwareExtension{
		role:       vmServer,
		connBytes:  connBytes,
		registry:   registry,
		broker:     broker,
		stats:      stats,
		serviceURI: serviceURI,
		log:        log,
	}
	v.Init(v, OptionVMwareExtension, "VMWARE-EXTENSION")
	return v
}

// NewVMwareExtensionClient builds the client-side stub (§4.8: "otherwise a
// stub for testing").
func NewVMwareExtensionClient(log zerolog.Logger) *VMwareExtension {
	v := &VMwareExtension{role: vmClient, log: log}
	v.Init(v, OptionVMwareExtension, "VMWARE-EXTENSION")
	return v
}

// ShouldAccept: server accepts them=true; client accepts them=false.
func (v *VMwareExtension) ShouldAccept(them bool) bool {
	if v.role == vmServer {
		return them
	}
	return !them
}

// OnStateChange announces the known-suboptions list on enable: KS2 from the
// server, KS1 from the client.
func (v *VMwareExtension) OnStateChange(them bool, enabled bool) {
	if !enabled {
		return
	}
	if v.role == vmServer && them {
		v.announce(vmwKnownSuboptions2)
	} else if v.role == vmClient && !them {
		v.announce(vmwKnownSuboptions1)
	}
}

func (v *VMwareExtension) announce(cmd byte) {
	payload := append([]byte{cmd}, allKnownSuboptions...)
	if err := v.Sender().SendOptionSubnegotiation(OptionVMwareExtension, payload); err != nil {
		v.log.Warn().Err(err).Msg("VMWARE-EXTENSION: failed to announce known suboptions")
	}
}

// SendBytes implements vmport.ConnectionOwner: once this handler is a
// VMPort's veo, inbound backend data is delivered to the VM through it.
func (v *VMwareExtension) SendBytes(data []byte) error {
	return v.connBytes.SendBytes(data)
}

// Subnegotiate dispatches the server-role subcommands from §4.8. The
// client role has no production subnegotiation behavior.
func (v *VMwareExtension) Subnegotiate(payload []byte) error {
	if v.role != vmServer {
		return nil
	}
	if len(payload) < 1 {
		return telnet.NewProtocolError("VMWARE-EXTENSION: empty subnegotiation")
	}
	cmd, rest := payload[0], payload[1:]
	switch cmd {
	case vmwVMVCUUID:
		return v.handleVCUUID(rest)
	case vmwVMName:
		return v.handleVMName(rest)
	case vmwDoProxy:
		return v.handleDoProxy(rest)
	case vmwVMotionBegin:
		return v.handleVMotionBegin(rest)
	case vmwVMotionPeer:
		return v.handleVMotionPeer(rest)
	case vmwVMotionAbort:
		return v.handleVMotionAbort()
	case vmwVMotionComplete:
		return v.handleVMotionComplete()
	case vmwKnownSuboptions1, vmwKnownSuboptions2:
		v.log.Debug().Msg("VMWARE-EXTENSION: known-suboptions announcement received")
		return nil
	default:
		return telnet.NewProtocolWarning("VMWARE-EXTENSION: unhandled subcommand %d", cmd)
	}
}

func (v *VMwareExtension) handleVCUUID(rest []byte) error {
	if v.vcUUID != "" {
		return nil
	}
	sanitized, err := sanitizeVCUUID(rest)
	if err != nil {
		return telnet.NewProtocolWarning("VMWARE-EXTENSION: %v", err)
	}
	v.vcUUID = sanitized
	v.identityCheck()
	return nil
}

func (v *VMwareExtension) handleVMName(rest []byte) error {
	if v.vmName != "" {
		return nil
	}
	if !utf8.Valid(rest) {
		return telnet.NewProtocolWarning("VMWARE-EXTENSION: VM_NAME is not valid UTF-8")
	}
	v.vmName = string(rest)
	v.identityCheck()
	return nil
}

func (v *VMwareExtension) handleDoProxy(rest []byte) error {
	if len(rest) < 1 {
		return telnet.NewProtocolError("VMWARE-EXTENSION: empty DO_PROXY payload")
	}
	direction := rest[0]
	serviceURI := string(rest[1:])

	ok, label := matchServiceURI(v.serviceURI, serviceURI)
	if direction != 'C' && direction != 'S' {
		ok = false
	}
	if !ok {
		return v.Sender().SendOptionSubnegotiation(OptionVMwareExtension, []byte{vmwWontProxy})
	}

	v.willProxy = true
	v.portLabel = label
	if err := v.Sender().SendOptionSubnegotiation(OptionVMwareExtension, []byte{vmwWillProxy}); err != nil {
		return err
	}
	if err := v.Sender().SendOptionSubnegotiation(OptionVMwareExtension, []byte{vmwGetVMVCUUID}); err != nil {
		return err
	}
	if err := v.Sender().SendOptionSubnegotiation(OptionVMwareExtension, []byte{vmwGetVMName}); err != nil {
		return err
	}
	v.identityCheck()
	return nil
}

// identityCheck attaches to (or creates) a VMPort once vc_uuid, vm_name and
// will_proxy are all known and no port is attached yet (§4.8).
func (v *VMwareExtension) identityCheck() {
	if v.vcUUID == "" || v.vmName == "" || !v.willProxy || v.port != nil {
		return
	}
	portID := v.vcUUID
	if v.portLabel != "" {
		portID = v.vcUUID + "." + v.portLabel
	}
	port := v.registry.GetOrCreate(portID, v.vcUUID, v.portLabel)
	port.VMName = v.vmName
	port.SetVEO(v)
	v.port = port
	v.log.Info().Str("port_id", portID).Str("vm_name", v.vmName).Msg("VM identity established, attached to VMPort")
}

func (v *VMwareExtension) handleVMotionBegin(sequence []byte) error {
	if v.vmotion != nil {
		v.broker.Remove(vmotion.Key(v.vmotion.sequence, v.vmotion.secret))
		v.stats.VMotionAbandon()
		v.vmotion = nil
	}
	secret, err := vmotion.GenerateSecret()
	if err != nil {
		return v.Sender().SendOptionSubnegotiation(OptionVMwareExtension, append([]byte{vmwVMotionNotNow}, sequence...))
	}
	v.vmotion = &pendingMigration{sequence: append([]byte(nil), sequence...), secret: secret}
	v.broker.Begin(vmotion.Key(sequence, secret), v)
	v.stats.VMotionBegin()
	return v.Sender().SendOptionSubnegotiation(OptionVMwareExtension, append(append([]byte{vmwVMotionGoAhead}, sequence...), secret...))
}

func (v *VMwareExtension) handleVMotionPeer(blob []byte) error {
	if len(blob) <= vmotion.SecretLen {
		return telnet.NewProtocolError("VMWARE-EXTENSION: VMOTION_PEER payload too short")
	}
	sequence := blob[:len(blob)-vmotion.SecretLen]
	secret := blob[len(blob)-vmotion.SecretLen:]
	key := vmotion.Key(sequence, secret)

	source, ok := v.broker.Lookup(key)
	if !ok {
		v.log.Debug().Msg("VMOTION_PEER: no matching BEGIN, source will time out")
		return nil
	}
	srcHandler, ok := source.(*VMwareExtension)
	if !ok {
		return telnet.NewProtocolError("VMWARE-EXTENSION: broker entry is not a VMwareExtension")
	}
	v.vmotionPeer = &peerInfo{source: srcHandler, sequence: append([]byte(nil), sequence...), key: key}
	v.stats.VMotionPeer()
	return v.Sender().SendOptionSubnegotiation(OptionVMwareExtension, append([]byte{vmwVMotionPeerOK}, sequence...))
}

func (v *VMwareExtension) handleVMotionAbort() error {
	if v.vmotion == nil {
		return nil // destination: no effect
	}
	v.broker.Remove(vmotion.Key(v.vmotion.sequence, v.vmotion.secret))
	v.vmotion = nil
	v.stats.VMotionAbort()
	return nil
}

// handleVMotionComplete performs the §4.9 handoff when this handler is the
// destination of a pending migration.
func (v *VMwareExtension) handleVMotionComplete() error {
	if v.vmotionPeer == nil {
		return nil // source: no effect
	}
	src := v.vmotionPeer.source

	if err := performHandoff(v, src); err != nil {
		return err
	}

	v.broker.Remove(v.vmotionPeer.key)
	v.vmotion = nil
	src.vmotion = nil
	v.vmotionPeer = nil
	v.stats.VMotionComplete()
	return nil
}

// performHandoff implements §4.9: it reassigns the VMPort from src to dest.
// The whole mutation runs with the destination VMPort's mutex held, so
// inbound data processing on either connection (§5) never observes dest
// partway through acquiring the port.
func performHandoff(dest, src *VMwareExtension) error {
	if src.port == nil {
		return telnet.NewProtocolError("vmotion complete: source has no attached port")
	}
	if dest.vcUUID != "" && dest.vcUUID != src.vcUUID {
		return telnet.NewProtocolError("vmotion complete: vc_uuid mismatch between source and destination")
	}

	port := src.port
	port.Lock()
	defer port.Unlock()

	if dest.vcUUID == "" {
		dest.vcUUID = src.vcUUID
	}
	if dest.vmName == "" {
		dest.vmName = src.vmName
	}
	dest.port = port
	port.SetVEOLocked(dest)
	return nil
}

// Port returns the VMPort this handler currently owns, or nil.
func (v *VMwareExtension) Port() *vmport.VMPort { return v.port }

func sanitizeVCUUID(raw []byte) (string, error) {
	var b strings.Builder
	for _, r := range string(raw) {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) != 32 {
		return "", telnet.NewProtocolError("VM_VC_UUID: expected 32 hex characters, got %d", len(s))
	}
	return s, nil
}

// matchServiceURI implements §4.8's DO_PROXY comparison: exact match, or a
// prefix match of configured+"?" followed by a query string whose "port"
// key becomes the returned label.
func matchServiceURI(configured, requested string) (ok bool, label string) {
	if requested == configured {
		return true, ""
	}
	prefix := configured + "?"
	if !strings.HasPrefix(requested, prefix) {
		return false, ""
	}
	values, err := url.ParseQuery(requested[len(prefix):])
	if err != nil {
		return true, ""
	}
	return true, values.Get("port")
}
