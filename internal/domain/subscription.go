package domain

import "time"

// PushSubscription is one registered device endpoint for an owner.
//
// The dispatcher only ever flips Active to false (dead endpoint cleanup);
// everything else is written at registration time.
type PushSubscription struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *PushSubscription) Clone() *PushSubscription {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
