package dht

import "errors"

var (
	// ErrPeerStopped is returned when sending to a peer whose mailbox has been closed.
	ErrPeerStopped = errors.New("dht: peer stopped")
	// ErrIntegrity flags a FoundData response whose content does not hash to the requested id.
	ErrIntegrity = errors.New("dht: content hash mismatch")
	// ErrLookupAborted is returned when a blocking lookup ends without a result.
	ErrLookupAborted = errors.New("dht: lookup aborted")
	// ErrNoPeers is returned when an operation needs a remote peer and none is known.
	ErrNoPeers = errors.New("dht: no known peers")
)

// IsPeerStopped reports whether the error came from sending to a stopped peer.
func IsPeerStopped(err error) bool {
	return errors.Is(err, ErrPeerStopped)
}

// IsIntegrity reports whether the error is a content integrity violation.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}
