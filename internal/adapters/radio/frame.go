package radio

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/beacons/internal/domain"
)

// maxFrameLen is the legacy advertising payload limit left for service data.
const maxFrameLen = 26

// maxURLLen is the longest encoded URL an Eddystone-URL frame carries.
const maxURLLen = 17

const (
	frameUID = 0x00
	frameURL = 0x10
	frameEID = 0x30
)

var urlSchemes = []string{"http://www.", "https://www.", "http://", "https://"}

var urlExpansions = []string{
	".com/", ".org/", ".edu/", ".net/", ".info/", ".biz/", ".gov/",
	".com", ".org", ".edu", ".net", ".info", ".biz", ".gov",
}

// txPowerDBm maps a power level to the calibrated power at 0 m.
func txPowerDBm(p domain.TxPower) int8 {
	switch p {
	case domain.TxPowerUltraLow:
		return -21
	case domain.TxPowerLow:
		return -15
	case domain.TxPowerHigh:
		return 1
	default:
		return -7
	}
}

// Encode builds the advertisement frame for b at time now. Rotating payloads
// depend on now; everything else is static.
func Encode(b *domain.Beacon, now time.Time) ([]byte, error) {
	tx := byte(txPowerDBm(b.Settings().TxPower))

	var frame []byte
	switch p := b.Payload().(type) {
	case domain.EddystoneURL:
		enc, err := encodeURL(p.URL)
		if err != nil {
			return nil, err
		}
		frame = append([]byte{frameURL, tx}, enc...)
	case domain.EddystoneUID:
		frame = append([]byte{frameUID, tx}, p.Namespace[:]...)
		frame = append(frame, p.Instance[:]...)
		frame = append(frame, 0, 0)
	case domain.EddystoneEID:
		eid, err := ephemeralID(p, now)
		if err != nil {
			return nil, err
		}
		frame = append([]byte{frameEID, tx}, eid...)
	case domain.IBeacon:
		frame = []byte{0x4c, 0x00, 0x02, 0x15}
		frame = append(frame, p.UUID[:]...)
		frame = binary.BigEndian.AppendUint16(frame, p.Major)
		frame = binary.BigEndian.AppendUint16(frame, p.Minor)
		frame = append(frame, tx)
	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", domain.ErrInvalidPayload, p)
	}

	if len(frame) > maxFrameLen {
		return nil, &domain.AdvertiseError{Code: domain.FailureDataTooLarge}
	}
	return frame, nil
}

func encodeURL(u string) ([]byte, error) {
	scheme := -1
	for i, s := range urlSchemes {
		if strings.HasPrefix(u, s) && (scheme < 0 || len(s) > len(urlSchemes[scheme])) {
			scheme = i
		}
	}
	if scheme < 0 {
		return nil, fmt.Errorf("%w: url scheme must be http or https", domain.ErrInvalidPayload)
	}

	out := []byte{byte(scheme)}
	rest := u[len(urlSchemes[scheme]):]
	for len(rest) > 0 {
		matched := false
		for code, exp := range urlExpansions {
			if strings.HasPrefix(rest, exp) {
				out = append(out, byte(code))
				rest = rest[len(exp):]
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, rest[0])
			rest = rest[1:]
		}
	}
	if len(out)-1 > maxURLLen {
		return nil, &domain.AdvertiseError{Code: domain.FailureDataTooLarge}
	}
	return out, nil
}

// ephemeralID derives the 8 byte identifier for the rotation window that
// contains now.
func ephemeralID(p domain.EddystoneEID, now time.Time) ([]byte, error) {
	block, err := aes.NewCipher(p.IdentityKey[:])
	if err != nil {
		return nil, err
	}
	counter := uint32(now.Unix()) >> p.RotationExponent << p.RotationExponent

	in := make([]byte, aes.BlockSize)
	in[11] = p.RotationExponent
	binary.BigEndian.PutUint32(in[12:], counter)

	out := make([]byte, aes.BlockSize)
	block.Encrypt(out, in)
	return out[:8], nil
}
