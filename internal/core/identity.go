package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Identity is the signed descriptor of one daemon process. It is used for
// provenance in logs and the status endpoint only.
type Identity struct {
	Namespace  string    `json:"namespace"`
	Version    string    `json:"version"`
	InstanceID uuid.UUID `json:"instance_id"`
	CreatedAt  time.Time `json:"created_at"`
	Signature  string    `json:"signature"`
}

// NewIdentity creates an identity with a fresh instance id
func NewIdentity(namespace, version string) Identity {
	id := Identity{
		Namespace:  namespace,
		Version:    version,
		InstanceID: uuid.Must(uuid.NewV7()),
		CreatedAt:  time.Now().UTC(),
	}
	id.Signature = Sign(namespace, version, id.InstanceID, id.CreatedAt)
	return id
}

// Sign computes the hex HMAC-SHA256 of instanceID+createdAt keyed by
// namespace+version. It is deterministic for identical inputs.
func Sign(namespace, version string, instanceID uuid.UUID, createdAt time.Time) string {
	mac := hmac.New(sha256.New, []byte(namespace+version))
	_, _ = mac.Write([]byte(instanceID.String() + createdAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares it in constant time
func (i Identity) Verify() error {
	expected := Sign(i.Namespace, i.Version, i.InstanceID, i.CreatedAt)
	if !hmac.Equal([]byte(expected), []byte(i.Signature)) {
		return errors.New("identity signature mismatch")
	}
	return nil
}

// ShortID returns the first block of the instance id for log lines
func (i Identity) ShortID() string {
	return i.InstanceID.String()[:8]
}
