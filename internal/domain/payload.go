package domain

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Kind tags the closed set of beacon variants.
type Kind int

const (
	KindEddystoneURL Kind = iota + 1
	KindEddystoneUID
	KindEddystoneEID
	KindIBeacon
)

// String returns the config name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEddystoneURL:
		return "eddystone-url"
	case KindEddystoneUID:
		return "eddystone-uid"
	case KindEddystoneEID:
		return "eddystone-eid"
	case KindIBeacon:
		return "ibeacon"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name.
func ParseKind(v string) (Kind, error) {
	switch lower(v) {
	case "eddystone-url", "url":
		return KindEddystoneURL, nil
	case "eddystone-uid", "uid":
		return KindEddystoneUID, nil
	case "eddystone-eid", "eid":
		return KindEddystoneEID, nil
	case "ibeacon":
		return KindIBeacon, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, v)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Payload is the advertised content of a beacon. The set of implementations
// is closed; use a type switch on the concrete types or dispatch on Kind.
type Payload interface {
	Kind() Kind
	Data() PayloadData
	payload()
}

// Refresher is implemented by payloads whose content rotates and must be
// recreated periodically.
type Refresher interface {
	RefreshPeriod() time.Duration
}

// PayloadData is the flat, serializable form of every payload variant.
// Byte fields are hex encoded.
type PayloadData struct {
	URL              string `json:"url,omitempty" yaml:"url,omitempty"`
	Namespace        string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Instance         string `json:"instance,omitempty" yaml:"instance,omitempty"`
	UUID             string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Major            uint16 `json:"major,omitempty" yaml:"major,omitempty"`
	Minor            uint16 `json:"minor,omitempty" yaml:"minor,omitempty"`
	IdentityKey      string `json:"identity_key,omitempty" yaml:"identity_key,omitempty"`
	RotationExponent uint8  `json:"rotation_exponent,omitempty" yaml:"rotation_exponent,omitempty"`
}

// EddystoneURL advertises a URL.
type EddystoneURL struct {
	URL string
}

func (EddystoneURL) Kind() Kind { return KindEddystoneURL }
func (EddystoneURL) payload()   {}

func (p EddystoneURL) Data() PayloadData {
	return PayloadData{URL: p.URL}
}

// EddystoneUID advertises a fixed 16-byte identifier.
type EddystoneUID struct {
	Namespace [10]byte
	Instance  [6]byte
}

func (EddystoneUID) Kind() Kind { return KindEddystoneUID }
func (EddystoneUID) payload()   {}

func (p EddystoneUID) Data() PayloadData {
	return PayloadData{
		Namespace: hex.EncodeToString(p.Namespace[:]),
		Instance:  hex.EncodeToString(p.Instance[:]),
	}
}

// EddystoneEID advertises an ephemeral identifier derived from IdentityKey
// that rotates every 2^RotationExponent seconds.
type EddystoneEID struct {
	IdentityKey      [16]byte
	RotationExponent uint8
}

// MaxRotationExponent bounds the EID rotation period to 2^15 seconds.
const MaxRotationExponent = 15

func (EddystoneEID) Kind() Kind { return KindEddystoneEID }
func (EddystoneEID) payload()   {}

func (p EddystoneEID) Data() PayloadData {
	return PayloadData{
		IdentityKey:      hex.EncodeToString(p.IdentityKey[:]),
		RotationExponent: p.RotationExponent,
	}
}

// RefreshPeriod implements Refresher.
func (p EddystoneEID) RefreshPeriod() time.Duration {
	return time.Duration(1<<p.RotationExponent) * time.Second
}

// IBeacon advertises a proximity UUID with major and minor numbers.
type IBeacon struct {
	UUID  uuid.UUID
	Major uint16
	Minor uint16
}

func (IBeacon) Kind() Kind { return KindIBeacon }
func (IBeacon) payload()   {}

func (p IBeacon) Data() PayloadData {
	return PayloadData{UUID: p.UUID.String(), Major: p.Major, Minor: p.Minor}
}

// DecodePayload validates d and builds the payload variant selected by kind.
func DecodePayload(kind Kind, d PayloadData) (Payload, error) {
	switch kind {
	case KindEddystoneURL:
		u, err := url.Parse(d.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: url %q must be an absolute http(s) URL", ErrInvalidPayload, d.URL)
		}
		return EddystoneURL{URL: d.URL}, nil

	case KindEddystoneUID:
		var p EddystoneUID
		if err := decodeHex("namespace", d.Namespace, p.Namespace[:]); err != nil {
			return nil, err
		}
		if err := decodeHex("instance", d.Instance, p.Instance[:]); err != nil {
			return nil, err
		}
		return p, nil

	case KindEddystoneEID:
		var p EddystoneEID
		if err := decodeHex("identity_key", d.IdentityKey, p.IdentityKey[:]); err != nil {
			return nil, err
		}
		if d.RotationExponent > MaxRotationExponent {
			return nil, fmt.Errorf("%w: rotation_exponent %d exceeds %d", ErrInvalidPayload, d.RotationExponent, MaxRotationExponent)
		}
		p.RotationExponent = d.RotationExponent
		return p, nil

	case KindIBeacon:
		id, err := uuid.Parse(d.UUID)
		if err != nil {
			return nil, fmt.Errorf("%w: uuid: %v", ErrInvalidPayload, err)
		}
		return IBeacon{UUID: id, Major: d.Major, Minor: d.Minor}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidPayload, int(kind))
}

func decodeHex(field, v string, dst []byte) error {
	b, err := hex.DecodeString(v)
	if err != nil || len(b) != len(dst) {
		return fmt.Errorf("%w: %s must be %d hex-encoded bytes", ErrInvalidPayload, field, len(dst))
	}
	copy(dst, b)
	return nil
}
