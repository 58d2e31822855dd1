package config

// FieldType enumerates the primitive types a Configuration Schema Entry can
// describe.
type FieldType int

const (
	TypeBool FieldType = iota
	TypeInt32
	TypeFloat
	TypeString
	TypeEnum
)

func (t FieldType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt32:
		return "int32"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// NetworkConfig is the [network] section of the snapshot.
type NetworkConfig struct {
	Host             string
	HTTPPort         int32
	RTSPPort         int32
	DiscoveryEnabled bool
}

// OnvifConfig is the [onvif] section of the snapshot.
type OnvifConfig struct {
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareID      string
	Realm           string
}

// ImagingConfig is the [imaging] section of the snapshot.
type ImagingConfig struct {
	Brightness   int32
	Contrast     int32
	Saturation   int32
	Sharpness    int32
	WhiteBalance string
}

// AutoIRConfig is the [autoir] section of the snapshot.
type AutoIRConfig struct {
	Enabled   bool
	Threshold int32
}

// VideoEncoderConfig describes one profile's video encoder settings.
type VideoEncoderConfig struct {
	Encoding    string
	Width       int32
	Height      int32
	FrameRate   int32
	BitrateKbps int32
}

// AudioEncoderConfig describes one profile's optional audio encoder
// settings.
type AudioEncoderConfig struct {
	Enabled     bool
	Encoding    string
	SampleRate  int32
	BitrateKbps int32
}

// ProfileConfig is one entry of the [profiles] section: a named bundle of
// video/audio encoder configuration, per spec.md §3 "Profile".
type ProfileConfig struct {
	Token string
	Video VideoEncoderConfig
	Audio AudioEncoderConfig
}

// PTZPresetCount is the number of PTZ preset slots the schema declares.
const PTZPresetCount = 4

// PTZPreset is one entry of the [ptz] section.
type PTZPreset struct {
	Token string
	Pan   float64
	Tilt  float64
	Zoom  float64
}

// PTZConfig is the [ptz] section of the snapshot.
type PTZConfig struct {
	Presets [PTZPresetCount]PTZPreset
}

// LoggingConfig is the [logging] section of the snapshot.
type LoggingConfig struct {
	Level          string
	Format         string
	FileEnabled    bool
	FilePath       string
	MaxFileSizeMB  int32
	BackupCount    int32
	ConsoleEnabled bool
}

// UserRecord is one entry of the [users] section. Password is never held in
// the clear: it is a "salt$hex" PBKDF2-SHA256 digest, per spec.md §4.6. HA1
// additionally stores MD5(name:realm:password) hex-encoded, the digest
// HTTP Digest authentication is defined in terms of (RFC 7616) — since the
// PBKDF2 digest above is not recoverable into that form, HA1 is derived
// once at registration time, before the plaintext password is discarded,
// and persisted alongside it.
type UserRecord struct {
	Name           string
	HashedPassword string
	HA1            string
	Level          string
}

// Snapshot is the single in-memory struct holding every typed
// configuration field, per spec.md §3 "Configuration Snapshot". It is
// always either the schema defaults or values that have passed schema
// validation.
type Snapshot struct {
	Network  NetworkConfig
	Onvif    OnvifConfig
	Imaging  ImagingConfig
	AutoIR   AutoIRConfig
	Profiles [2]ProfileConfig // index 0 = main, index 1 = sub
	PTZ      PTZConfig
	Logging  LoggingConfig
	Users    map[string]UserRecord
}

// clone returns a deep copy of the snapshot, used when installing a new
// immutable snapshot after a successful mutation.
func (s *Snapshot) clone() *Snapshot {
	cp := *s
	cp.Users = make(map[string]UserRecord, len(s.Users))
	for k, v := range s.Users {
		cp.Users[k] = v
	}
	return &cp
}

const (
	profileMain = 0
	profileSub  = 1
)
