package dht

// Kind tags message bodies for dispatch, logging and metrics.
type Kind uint8

const (
	KindPing Kind = iota + 1
	KindPong
	KindFind
	KindFoundPeers
	KindFoundData
	KindStop

	// Local control messages submitted by a Client. They never cross peers.
	kindStoreRequest
	kindLookupRequest
	kindPingRequest
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindFind:
		return "find"
	case KindFoundPeers:
		return "found_peers"
	case KindFoundData:
		return "found_data"
	case KindStop:
		return "stop"
	case kindStoreRequest:
		return "store_request"
	case kindLookupRequest:
		return "lookup_request"
	case kindPingRequest:
		return "ping_request"
	default:
		return "unknown"
	}
}

// Message is the envelope exchanged between peers. The receiver observes From
// into its routing table before handling Body.
type Message struct {
	From PeerInfo
	Body Body
}

// Body is one of the protocol payloads below.
type Body interface {
	Kind() Kind
}

// Ping asks for a Pong carrying the same MsgID. Time is the sender's clock in
// Unix nanoseconds.
type Ping struct {
	MsgID uint64
	Time  int64
}

// Pong answers a Ping, echoing its timestamp.
type Pong struct {
	MsgID uint64
	Time  int64
}

// Find asks who is closest to Hash, or for the content itself.
type Find struct {
	MsgID uint64
	Hash  ID
}

// FoundPeers answers a Find with the responder's closest known peers.
type FoundPeers struct {
	MsgID uint64
	Peers []PeerInfo
}

// FoundData carries content, either answering a Find (Propagate false) or
// pushing it toward its closest holder (Propagate true).
type FoundData struct {
	MsgID     uint64
	Data      []byte
	Propagate bool
}

// Stop closes the receiving peer's mailbox once handled.
type Stop struct{}

func (Ping) Kind() Kind       { return KindPing }
func (Pong) Kind() Kind       { return KindPong }
func (Find) Kind() Kind       { return KindFind }
func (FoundPeers) Kind() Kind { return KindFoundPeers }
func (FoundData) Kind() Kind  { return KindFoundData }
func (Stop) Kind() Kind       { return KindStop }

type storeReply struct {
	id  ID
	err error
}

type storeRequest struct {
	data  []byte
	reply chan<- storeReply
}

type lookupRequest struct {
	hash    ID
	ttl     int
	results chan<- LookupResult
}

type pingRequest struct {
	target PeerInfo
	reply  chan<- error
}

func (storeRequest) Kind() Kind  { return kindStoreRequest }
func (lookupRequest) Kind() Kind { return kindLookupRequest }
func (pingRequest) Kind() Kind   { return kindPingRequest }
