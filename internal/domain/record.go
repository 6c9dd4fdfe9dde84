package domain

import "time"

// Record is the persisted form of a beacon. Only desired state and
// configuration survive a restart; radio state is always rebuilt.
type Record struct {
	StorageID   int64         `json:"storage_id" yaml:"-"`
	Kind        Kind          `json:"kind" yaml:"kind"`
	Payload     PayloadData   `json:"payload" yaml:"payload"`
	Mode        AdvertiseMode `json:"mode" yaml:"mode"`
	TxPower     TxPower       `json:"tx_power" yaml:"tx_power"`
	Connectable bool          `json:"connectable" yaml:"connectable"`
	Flags       uint32        `json:"flags" yaml:"flags"`
	Name        string        `json:"name,omitempty" yaml:"name"`
	Desired     ActiveState   `json:"desired" yaml:"desired"`
	CreatedAt   time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"-"`
}

// Validate checks that the record describes a restorable beacon.
func (r Record) Validate() error {
	if !r.Desired.Valid() {
		return ErrInvalidState
	}
	_, err := DecodePayload(r.Kind, r.Payload)
	return err
}
