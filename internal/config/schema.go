package config

import "fmt"

// Entry is a Configuration Schema Entry: a static descriptor for one
// (section, key) pair, per spec.md §3. The schema table is built once at
// startup and never mutated afterward. Offset-into-snapshot, which the
// spec's C lineage expresses as a raw memory offset, is expressed here as
// a pair of closures bound to a *Snapshot — the idiomatic Go analogue.
type Entry struct {
	Section     string
	Key         string
	Type        FieldType
	Required    bool
	Min         float64
	Max         float64
	MaxLength   int
	EnumValues  []string
	DefaultLit  string
	Get         func(*Snapshot) string
	Set         func(*Snapshot, string) error
}

func (e *Entry) id() string { return e.Section + "." + e.Key }

// Schema is the immutable, process-wide table of Entry descriptors plus an
// O(1) lookup index keyed by (section,key).
type Schema struct {
	entries []*Entry
	index   map[string]*Entry
}

func newSchema(entries []*Entry) *Schema {
	idx := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		idx[e.id()] = e
	}
	return &Schema{entries: entries, index: idx}
}

func (s *Schema) lookup(section, key string) (*Entry, bool) {
	e, ok := s.index[section+"."+key]
	return e, ok
}

// Entries returns the full immutable entry list, in declaration order.
func (s *Schema) Entries() []*Entry { return s.entries }

// defaultSchema builds the process-wide schema table described by
// SPEC_FULL.md §3/§4.8: network, onvif, imaging, autoir, profiles, ptz and
// logging fields. The [users] section is intentionally not schema-driven —
// see Runtime.RegisterUser.
func defaultSchema() *Schema {
	var entries []*Entry

	str := func(section, key, def string, maxLen int, get func(*Snapshot) string, set func(*Snapshot, string)) *Entry {
		return &Entry{
			Section: section, Key: key, Type: TypeString, MaxLength: maxLen, DefaultLit: def,
			Get: get,
			Set: func(s *Snapshot, v string) error {
				if len(v) > maxLen {
					return fmt.Errorf("value exceeds max length %d", maxLen)
				}
				set(s, v)
				return nil
			},
		}
	}
	i32 := func(section, key, def string, min, max float64, get func(*Snapshot) int32, set func(*Snapshot, int32)) *Entry {
		return &Entry{
			Section: section, Key: key, Type: TypeInt32, Min: min, Max: max, DefaultLit: def,
			Get: func(s *Snapshot) string { return fmt.Sprintf("%d", get(s)) },
			Set: func(s *Snapshot, v string) error {
				n, err := parseInt32(v)
				if err != nil {
					return err
				}
				if float64(n) < min || float64(n) > max {
					return fmt.Errorf("value %d out of range [%g,%g]", n, min, max)
				}
				set(s, n)
				return nil
			},
		}
	}
	f64 := func(section, key, def string, min, max float64, get func(*Snapshot) float64, set func(*Snapshot, float64)) *Entry {
		return &Entry{
			Section: section, Key: key, Type: TypeFloat, Min: min, Max: max, DefaultLit: def,
			Get: func(s *Snapshot) string { return fmt.Sprintf("%g", get(s)) },
			Set: func(s *Snapshot, v string) error {
				n, err := parseFloat(v)
				if err != nil {
					return err
				}
				if n < min || n > max {
					return fmt.Errorf("value %g out of range [%g,%g]", n, min, max)
				}
				set(s, n)
				return nil
			},
		}
	}
	boolean := func(section, key, def string, get func(*Snapshot) bool, set func(*Snapshot, bool)) *Entry {
		return &Entry{
			Section: section, Key: key, Type: TypeBool, DefaultLit: def,
			Get: func(s *Snapshot) string { return fmt.Sprintf("%t", get(s)) },
			Set: func(s *Snapshot, v string) error {
				b, err := parseBool(v)
				if err != nil {
					return err
				}
				set(s, b)
				return nil
			},
		}
	}
	enum := func(section, key, def string, values []string, get func(*Snapshot) string, set func(*Snapshot, string)) *Entry {
		return &Entry{
			Section: section, Key: key, Type: TypeEnum, EnumValues: values, DefaultLit: def,
			Get: get,
			Set: func(s *Snapshot, v string) error {
				for _, ev := range values {
					if ev == v {
						set(s, v)
						return nil
					}
				}
				return fmt.Errorf("value %q not in enum %v", v, values)
			},
		}
	}

	entries = append(entries,
		str("network", "host", "0.0.0.0", 64,
			func(s *Snapshot) string { return s.Network.Host },
			func(s *Snapshot, v string) { s.Network.Host = v }),
		i32("network", "http_port", "8080", 1, 65535,
			func(s *Snapshot) int32 { return s.Network.HTTPPort },
			func(s *Snapshot, v int32) { s.Network.HTTPPort = v }),
		i32("network", "rtsp_port", "554", 1, 65535,
			func(s *Snapshot) int32 { return s.Network.RTSPPort },
			func(s *Snapshot, v int32) { s.Network.RTSPPort = v }),
		boolean("network", "discovery_enabled", "true",
			func(s *Snapshot) bool { return s.Network.DiscoveryEnabled },
			func(s *Snapshot, v bool) { s.Network.DiscoveryEnabled = v }),

		str("onvif", "manufacturer", "ONVIF-Camera", 64,
			func(s *Snapshot) string { return s.Onvif.Manufacturer },
			func(s *Snapshot, v string) { s.Onvif.Manufacturer = v }),
		str("onvif", "model", "AK3918", 64,
			func(s *Snapshot) string { return s.Onvif.Model },
			func(s *Snapshot, v string) { s.Onvif.Model = v }),
		str("onvif", "firmware_version", "1.0.0", 32,
			func(s *Snapshot) string { return s.Onvif.FirmwareVersion },
			func(s *Snapshot, v string) { s.Onvif.FirmwareVersion = v }),
		str("onvif", "serial_number", "0000000000", 32,
			func(s *Snapshot) string { return s.Onvif.SerialNumber },
			func(s *Snapshot, v string) { s.Onvif.SerialNumber = v }),
		str("onvif", "hardware_id", "AK3918-HW1", 32,
			func(s *Snapshot) string { return s.Onvif.HardwareID },
			func(s *Snapshot, v string) { s.Onvif.HardwareID = v }),
		str("onvif", "realm", "onvif", 64,
			func(s *Snapshot) string { return s.Onvif.Realm },
			func(s *Snapshot, v string) { s.Onvif.Realm = v }),

		i32("imaging", "brightness", "50", 0, 100,
			func(s *Snapshot) int32 { return s.Imaging.Brightness },
			func(s *Snapshot, v int32) { s.Imaging.Brightness = v }),
		i32("imaging", "contrast", "50", 0, 100,
			func(s *Snapshot) int32 { return s.Imaging.Contrast },
			func(s *Snapshot, v int32) { s.Imaging.Contrast = v }),
		i32("imaging", "saturation", "50", 0, 100,
			func(s *Snapshot) int32 { return s.Imaging.Saturation },
			func(s *Snapshot, v int32) { s.Imaging.Saturation = v }),
		i32("imaging", "sharpness", "50", 0, 100,
			func(s *Snapshot) int32 { return s.Imaging.Sharpness },
			func(s *Snapshot, v int32) { s.Imaging.Sharpness = v }),
		enum("imaging", "white_balance", "auto", []string{"auto", "manual"},
			func(s *Snapshot) string { return s.Imaging.WhiteBalance },
			func(s *Snapshot, v string) { s.Imaging.WhiteBalance = v }),

		boolean("autoir", "enabled", "true",
			func(s *Snapshot) bool { return s.AutoIR.Enabled },
			func(s *Snapshot, v bool) { s.AutoIR.Enabled = v }),
		i32("autoir", "threshold", "40", 0, 255,
			func(s *Snapshot) int32 { return s.AutoIR.Threshold },
			func(s *Snapshot, v int32) { s.AutoIR.Threshold = v }),

		str("logging", "level", "info", 16,
			func(s *Snapshot) string { return s.Logging.Level },
			func(s *Snapshot, v string) { s.Logging.Level = v }),
		enum("logging", "format", "text", []string{"text", "json"},
			func(s *Snapshot) string { return s.Logging.Format },
			func(s *Snapshot, v string) { s.Logging.Format = v }),
		boolean("logging", "file_enabled", "false",
			func(s *Snapshot) bool { return s.Logging.FileEnabled },
			func(s *Snapshot, v bool) { s.Logging.FileEnabled = v }),
		str("logging", "file_path", "/var/log/onvifd/onvifd.log", 256,
			func(s *Snapshot) string { return s.Logging.FilePath },
			func(s *Snapshot, v string) { s.Logging.FilePath = v }),
		i32("logging", "max_file_size_mb", "10", 1, 1000,
			func(s *Snapshot) int32 { return s.Logging.MaxFileSizeMB },
			func(s *Snapshot, v int32) { s.Logging.MaxFileSizeMB = v }),
		i32("logging", "backup_count", "5", 0, 100,
			func(s *Snapshot) int32 { return s.Logging.BackupCount },
			func(s *Snapshot, v int32) { s.Logging.BackupCount = v }),
		boolean("logging", "console_enabled", "true",
			func(s *Snapshot) bool { return s.Logging.ConsoleEnabled },
			func(s *Snapshot, v bool) { s.Logging.ConsoleEnabled = v }),
	)

	entries = append(entries, profileEntries("main", profileMain, "MainProfile", 1920, 1080, 25, 2000)...)
	entries = append(entries, profileEntries("sub", profileSub, "SubProfile", 640, 360, 15, 512)...)
	entries = append(entries, ptzEntries()...)

	return newSchema(entries)
}

func profileEntries(prefix string, idx int, tokenDefault string, w, h, fr, br int32) []*Entry {
	fmtDef := func(v int32) string { return fmt.Sprintf("%d", v) }
	return []*Entry{
		{
			Section: "profiles", Key: prefix + "_token", Type: TypeString, MaxLength: 32, DefaultLit: tokenDefault,
			Get: func(s *Snapshot) string { return s.Profiles[idx].Token },
			Set: func(s *Snapshot, v string) error {
				if len(v) == 0 || len(v) > 32 {
					return fmt.Errorf("profile token length must be 1..32")
				}
				s.Profiles[idx].Token = v
				return nil
			},
		},
		{
			Section: "profiles", Key: prefix + "_video_encoding", Type: TypeEnum, EnumValues: []string{"H264"}, DefaultLit: "H264",
			Get: func(s *Snapshot) string { return s.Profiles[idx].Video.Encoding },
			Set: func(s *Snapshot, v string) error {
				if v != "H264" {
					return fmt.Errorf("unsupported video encoding %q", v)
				}
				s.Profiles[idx].Video.Encoding = v
				return nil
			},
		},
		{
			Section: "profiles", Key: prefix + "_video_width", Type: TypeInt32, Min: 16, Max: 4096, DefaultLit: fmtDef(w),
			Get: func(s *Snapshot) string { return fmtDef(s.Profiles[idx].Video.Width) },
			Set: func(s *Snapshot, v string) error {
				n, err := parseInt32(v)
				if err != nil {
					return err
				}
				if n < 16 || n > 4096 {
					return fmt.Errorf("width out of range")
				}
				s.Profiles[idx].Video.Width = n
				return nil
			},
		},
		{
			Section: "profiles", Key: prefix + "_video_height", Type: TypeInt32, Min: 16, Max: 4096, DefaultLit: fmtDef(h),
			Get: func(s *Snapshot) string { return fmtDef(s.Profiles[idx].Video.Height) },
			Set: func(s *Snapshot, v string) error {
				n, err := parseInt32(v)
				if err != nil {
					return err
				}
				if n < 16 || n > 4096 {
					return fmt.Errorf("height out of range")
				}
				s.Profiles[idx].Video.Height = n
				return nil
			},
		},
		{
			Section: "profiles", Key: prefix + "_video_framerate", Type: TypeInt32, Min: 1, Max: 60, DefaultLit: fmtDef(fr),
			Get: func(s *Snapshot) string { return fmtDef(s.Profiles[idx].Video.FrameRate) },
			Set: func(s *Snapshot, v string) error {
				n, err := parseInt32(v)
				if err != nil {
					return err
				}
				if n < 1 || n > 60 {
					return fmt.Errorf("frame rate out of range")
				}
				s.Profiles[idx].Video.FrameRate = n
				return nil
			},
		},
		{
			Section: "profiles", Key: prefix + "_video_bitrate_kbps", Type: TypeInt32, Min: 1, Max: 20000, DefaultLit: fmtDef(br),
			Get: func(s *Snapshot) string { return fmtDef(s.Profiles[idx].Video.BitrateKbps) },
			Set: func(s *Snapshot, v string) error {
				n, err := parseInt32(v)
				if err != nil {
					return err
				}
				if n < 1 || n > 20000 {
					return fmt.Errorf("bitrate out of range")
				}
				s.Profiles[idx].Video.BitrateKbps = n
				return nil
			},
		},
		{
			Section: "profiles", Key: prefix + "_audio_enabled", Type: TypeBool, DefaultLit: "false",
			Get: func(s *Snapshot) string { return fmt.Sprintf("%t", s.Profiles[idx].Audio.Enabled) },
			Set: func(s *Snapshot, v string) error {
				b, err := parseBool(v)
				if err != nil {
					return err
				}
				s.Profiles[idx].Audio.Enabled = b
				return nil
			},
		},
	}
}

func ptzEntries() []*Entry {
	var out []*Entry
	for i := 0; i < PTZPresetCount; i++ {
		i := i
		prefix := fmt.Sprintf("preset%d", i+1)
		out = append(out,
			&Entry{
				Section: "ptz", Key: prefix + "_token", Type: TypeString, MaxLength: 32, DefaultLit: "",
				Get: func(s *Snapshot) string { return s.PTZ.Presets[i].Token },
				Set: func(s *Snapshot, v string) error {
					if len(v) > 32 {
						return fmt.Errorf("preset token too long")
					}
					s.PTZ.Presets[i].Token = v
					return nil
				},
			},
			&Entry{
				Section: "ptz", Key: prefix + "_pan", Type: TypeFloat, Min: -1, Max: 1, DefaultLit: "0",
				Get: func(s *Snapshot) string { return fmt.Sprintf("%g", s.PTZ.Presets[i].Pan) },
				Set: func(s *Snapshot, v string) error {
					n, err := parseFloat(v)
					if err != nil {
						return err
					}
					if n < -1 || n > 1 {
						return fmt.Errorf("pan out of range")
					}
					s.PTZ.Presets[i].Pan = n
					return nil
				},
			},
			&Entry{
				Section: "ptz", Key: prefix + "_tilt", Type: TypeFloat, Min: -1, Max: 1, DefaultLit: "0",
				Get: func(s *Snapshot) string { return fmt.Sprintf("%g", s.PTZ.Presets[i].Tilt) },
				Set: func(s *Snapshot, v string) error {
					n, err := parseFloat(v)
					if err != nil {
						return err
					}
					if n < -1 || n > 1 {
						return fmt.Errorf("tilt out of range")
					}
					s.PTZ.Presets[i].Tilt = n
					return nil
				},
			},
			&Entry{
				Section: "ptz", Key: prefix + "_zoom", Type: TypeFloat, Min: 0, Max: 1, DefaultLit: "0",
				Get: func(s *Snapshot) string { return fmt.Sprintf("%g", s.PTZ.Presets[i].Zoom) },
				Set: func(s *Snapshot, v string) error {
					n, err := parseFloat(v)
					if err != nil {
						return err
					}
					if n < 0 || n > 1 {
						return fmt.Errorf("zoom out of range")
					}
					s.PTZ.Presets[i].Zoom = n
					return nil
				},
			},
		)
	}
	return out
}
