package server

import (
	"gopkg.in/op/go-logging.v1"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/instrument"
)

// Broadcaster implements domain.Broadcaster over a registry snapshot.
type Broadcaster struct {
	reg       domain.Registry
	log       *logging.Logger
	onFailure func(ids []domain.ConnID)
}

var _ domain.Broadcaster = (*Broadcaster)(nil)

// NewBroadcaster returns a broadcaster over reg. onFailure receives the IDs
// whose write failed; it must not block on network I/O of the caller.
func NewBroadcaster(reg domain.Registry, log *logging.Logger, onFailure func([]domain.ConnID)) *Broadcaster {
	return &Broadcaster{reg: reg, log: log, onFailure: onFailure}
}

// Broadcast encrypts plaintext separately for every registered connection
// except exclude and writes one base64 line to each.
func (b *Broadcaster) Broadcast(plaintext string, exclude domain.ConnID) {
	var failed []domain.ConnID
	for _, e := range b.reg.Snapshot() {
		if e.ID == exclude {
			continue
		}
		line, err := crypto.EncryptString(e.PublicKey, plaintext)
		if err != nil {
			// Too long for this recipient's key; others may still fit.
			b.log.Warningf("Skipping %s (conn %s): %v", e.Name, e.ID, err)
			instrument.DeliveryFailed()
			continue
		}
		if err := e.Conn.Send(line); err != nil {
			b.log.Infof("Write to %s (conn %s) failed: %v", e.Name, e.ID, err)
			instrument.DeliveryFailed()
			failed = append(failed, e.ID)
			continue
		}
		instrument.Delivered()
	}
	if len(failed) > 0 && b.onFailure != nil {
		b.onFailure(failed)
	}
}
