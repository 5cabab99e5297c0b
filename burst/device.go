package burst

import (
	"context"
	"fmt"
)

// DeviceType is a drive model as reported by identification.
type DeviceType int

const (
	DeviceUnknown DeviceType = iota
	Device1541
	Device1570
	Device1571
	Device1581
)

func (t DeviceType) String() string {
	switch t {
	case Device1541:
		return "1541"
	case Device1570:
		return "1570"
	case Device1571:
		return "1571"
	case Device1581:
		return "1581"
	case DeviceUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(t))
	}
}

// SupportsBurst reports whether the model has the shift register the burst
// protocol needs.
func (t DeviceType) SupportsBurst() bool {
	return t == Device1570 || t == Device1571
}

// Identifier finds out which model is attached as drive.
type Identifier interface {
	Identify(ctx context.Context, drive byte) (DeviceType, error)
}

// StaticIdentifier reports the same model for every drive, for setups that
// are known in advance.
type StaticIdentifier DeviceType

func (s StaticIdentifier) Identify(context.Context, byte) (DeviceType, error) {
	return DeviceType(s), nil
}

// Uploader writes a program into drive memory and returns the number of
// bytes the drive accepted. *iec.Session implements it.
type Uploader interface {
	Upload(ctx context.Context, drive byte, addr uint16, program []byte) (int, error)
}

// Port moves single bytes with the fast-serial strobe. *iec.SRQPort
// implements it.
type Port interface {
	ReadByte(ctx context.Context) (byte, error)
	WriteByte(ctx context.Context, b byte) error
}

// TrackReader is implemented by ports that read a run of bytes in one go.
// ReadBlock uses it when available.
type TrackReader interface {
	ReadTrack(ctx context.Context, buf []byte) (int, error)
}
