// Package p2p implements the ledger's peer discovery and liveness
// protocol: a five-message UDP datagram vocabulary with no handshake,
// built to bootstrap a flat peer mesh from a single seed address.
package p2p

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/chainkit/ledger/pkg/logging"
)

// ActionType names one of the messages a node exchanges with its peers:
// five for discovery and liveness, two for transaction and block gossip.
type ActionType string

const (
	ActionNewPeer           ActionType = "new_peer"
	ActionPeers             ActionType = "peers"
	ActionIntroduce         ActionType = "introduce"
	ActionHeartbeatRequest  ActionType = "heartbeat_request"
	ActionHeartbeatResponse ActionType = "heartbeat_response"

	// ActionTx and ActionBlock ride the same datagram transport to gossip
	// transactions and candidate blocks to the peer mesh this protocol
	// already maintains, rather than standing up a second transport.
	ActionTx    ActionType = "tx"
	ActionBlock ActionType = "block"
)

// Message is the wire envelope every datagram carries.
type Message struct {
	Type ActionType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Observer lets the P2P layer reach into chain state without importing
// the node package, avoiding an import cycle while still letting a
// heartbeat response update the node's view of the longest chain.
type Observer interface {
	ChainLength() int
	NotifyNewPeers()
	UpdateLongestChain(peerLen int, addr string)
}

// Gossip receives transactions and blocks relayed by peers. It is
// separate from Observer because it carries domain payloads rather
// than the bare peer-liveness bookkeeping Observer needs.
type Gossip interface {
	HandleTx(raw json.RawMessage)
	HandleBlock(raw json.RawMessage)
}

// Node runs the UDP peer-discovery and liveness protocol.
type Node struct {
	Port     int
	SeedAddr string

	AliveTimeout   time.Duration
	UpdateInterval time.Duration

	observer Observer
	gossip   Gossip
	log      *logging.Logger

	conn net.PacketConn

	peersMu sync.Mutex
	peers   map[string]bool

	livesMu sync.Mutex
	lives   map[string]time.Time
}

// New creates a Node listening on port, bootstrapping through seedAddr.
func New(port int, seedAddr string, aliveTimeout, updateInterval time.Duration, observer Observer, log *logging.Logger) *Node {
	return &Node{
		Port:           port,
		SeedAddr:       seedAddr,
		AliveTimeout:   aliveTimeout,
		UpdateInterval: updateInterval,
		observer:       observer,
		log:            log,
		peers:          make(map[string]bool),
		lives:          make(map[string]time.Time),
	}
}

// SetGossip registers the handler for relayed transactions and blocks.
func (n *Node) SetGossip(g Gossip) {
	n.gossip = g
}

// Run opens the UDP socket and blocks, running the receive loop and the
// heartbeat loop until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", ":"+strconv.Itoa(n.Port))
	if err != nil {
		return err
	}
	n.conn = conn
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go n.keepAlive(ctx)
	n.sendToSeed()

	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		nr, addr, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}
		n.handle(buf[:nr], addr.String())
	}
}

func (n *Node) handle(data []byte, addr string) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		n.log.Warn("p2p: malformed message", "from", addr, "error", err)
		return
	}

	switch msg.Type {
	case ActionNewPeer:
		n.addPeer(addr)
		n.sendPeers(addr)
	case ActionPeers:
		var addrs []string
		_ = json.Unmarshal(msg.Data, &addrs)
		for _, a := range addrs {
			n.addPeer(a)
		}
		n.broadcastIntroduce()
	case ActionIntroduce:
		n.observer.NotifyNewPeers()
		n.addPeer(addr)
	case ActionHeartbeatRequest:
		n.sendHeartbeatResponse(addr)
	case ActionHeartbeatResponse:
		var chainLen int
		_ = json.Unmarshal(msg.Data, &chainLen)
		n.observer.UpdateLongestChain(chainLen, addr)
		n.addPeer(addr)
	case ActionTx:
		if n.gossip != nil {
			n.gossip.HandleTx(msg.Data)
		}
	case ActionBlock:
		if n.gossip != nil {
			n.gossip.HandleBlock(msg.Data)
		}
	}
	n.refreshLife(addr)
}

func (n *Node) send(msg Message, to string) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	udpAddr, err := net.ResolveUDPAddr("udp", to)
	if err != nil {
		return
	}
	if _, err := n.conn.WriteTo(raw, udpAddr); err != nil {
		n.log.Warn("p2p: send failed", "to", to, "error", err)
	}
}

// Broadcast sends msg to every currently known peer.
func (n *Node) Broadcast(msg Message) {
	for _, addr := range n.Peers() {
		n.send(msg, addr)
	}
}

// Peers returns a snapshot of known peer addresses.
func (n *Node) Peers() []string {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	out := make([]string, 0, len(n.peers))
	for a := range n.peers {
		out = append(out, a)
	}
	return out
}

func (n *Node) addPeer(addr string) {
	n.peersMu.Lock()
	n.peers[addr] = true
	n.peersMu.Unlock()
}

func (n *Node) removePeers(addrs []string) {
	n.peersMu.Lock()
	n.livesMu.Lock()
	for _, a := range addrs {
		delete(n.peers, a)
		delete(n.lives, a)
	}
	n.livesMu.Unlock()
	n.peersMu.Unlock()
}

func (n *Node) refreshLife(addr string) {
	n.livesMu.Lock()
	n.lives[addr] = time.Now()
	n.livesMu.Unlock()
}

func (n *Node) silentPeers() []string {
	limit := time.Now().Add(-n.AliveTimeout)
	n.livesMu.Lock()
	defer n.livesMu.Unlock()
	var silent []string
	for addr, last := range n.lives {
		if last.Before(limit) {
			silent = append(silent, addr)
		}
	}
	return silent
}

func (n *Node) sendPeers(to string) {
	raw, _ := json.Marshal(n.Peers())
	n.send(Message{Type: ActionPeers, Data: raw}, to)
}

func (n *Node) broadcastIntroduce() {
	n.Broadcast(Message{Type: ActionIntroduce, Data: json.RawMessage(`""`)})
}

func (n *Node) broadcastHeartbeat() {
	silent := n.silentPeers()
	n.removePeers(silent)
	for _, addr := range n.Peers() {
		n.send(Message{Type: ActionHeartbeatRequest, Data: json.RawMessage(`""`)}, addr)
	}
}

func (n *Node) sendHeartbeatResponse(to string) {
	raw, _ := json.Marshal(n.observer.ChainLength())
	n.send(Message{Type: ActionHeartbeatResponse, Data: raw}, to)
}

func (n *Node) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(n.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.broadcastHeartbeat()
		}
	}
}

func (n *Node) sendToSeed() {
	if n.SeedAddr == "" {
		return
	}
	n.send(Message{Type: ActionNewPeer, Data: json.RawMessage(`""`)}, n.SeedAddr)
}
