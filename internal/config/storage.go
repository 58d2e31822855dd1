package config

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/ini.v1"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/logging"
)

// maxConfigFileBytes bounds how much of the on-disk file Storage will read,
// per spec.md §4.9 "bounded-buffer read" — a corrupt or maliciously large
// file must not be read into memory unbounded.
const maxConfigFileBytes = 1 << 20 // 1 MiB

// sectionOrder is the fixed section emission order used by Save, matching
// spec.md §6's listing of [onvif] [network] [imaging] [autoir] [profiles]
// [ptz] [users] [logging]. Load accepts sections in any order.
var sectionOrder = []string{"onvif", "network", "imaging", "autoir", "profiles", "ptz", "users", "logging"}

const checksumKey = "checksum"

// Storage is the Config Storage layer of spec.md §4.9: atomic, checksummed
// INI persistence for a Runtime's Snapshot. Parsing/tokenising of the INI
// text is delegated to gopkg.in/ini.v1; checksum framing and the
// write-temp-then-rename sequence are done directly so the exact on-disk
// byte layout (and therefore the checksum) is fully under our control.
type Storage struct {
	path    string
	runtime *Runtime
	logger  *logging.Logger
}

// NewStorage binds a Storage to path and the Runtime it loads into / saves
// from.
func NewStorage(path string, runtime *Runtime, logger *logging.Logger) *Storage {
	if logger == nil {
		logger = logging.GetLogger("config.storage")
	}
	return &Storage{path: path, runtime: runtime, logger: logger}
}

// Enqueue implements PersistQueue by saving the whole snapshot synchronously.
// A single-writer daemon has no need for an actual queue — see the
// PersistQueue doc comment in runtime.go.
func (st *Storage) Enqueue(snap *Snapshot) error {
	return st.Save(snap)
}

// Load reads the on-disk INI file, verifies its checksum line, and applies
// every recognised (section,key) into the Runtime via its validated Set*
// path. Entries that fail validation are logged and skipped — the snapshot
// is left at whatever it held before that one field (spec.md §4.9 "degraded
// load: continue on a single bad field"). A file that cannot be read,
// decoded, or checksum-verified at all leaves the Runtime at schema
// defaults and returns an apperr IO error; the caller should still proceed
// to serve with defaults rather than treat this as fatal.
func (st *Storage) Load() error {
	raw, err := os.ReadFile(st.path)
	if err != nil {
		st.runtime.ApplyDefaults()
		if os.IsNotExist(err) {
			return apperr.Wrap(apperr.KindIO, "config.storage", "config file does not exist, applied defaults", err)
		}
		return apperr.Wrap(apperr.KindIO, "config.storage", "failed to read config file, applied defaults", err)
	}
	if len(raw) > maxConfigFileBytes {
		st.runtime.ApplyDefaults()
		return apperr.New(apperr.KindIO, "config.storage", "config file exceeds maximum size, applied defaults")
	}
	if !utf8.Valid(raw) {
		st.runtime.ApplyDefaults()
		return apperr.New(apperr.KindIO, "config.storage", "config file is not valid UTF-8, applied defaults")
	}

	// The checksum line is optional (spec.md §6): a hand-edited or
	// pre-checksum file with no trailing checksum= line still loads
	// normally, skipping only the verification step. Only a checksum line
	// that is present and wrong is treated as corruption.
	body, sum, ok := splitChecksum(raw)
	if !ok {
		body = raw
	} else if got := crc32.ChecksumIEEE(body); fmt.Sprintf("%08x", got) != sum {
		st.runtime.ApplyDefaults()
		return apperr.New(apperr.KindIO, "config.storage", "config file checksum mismatch, applied defaults")
	}

	f, err := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: false}, body)
	if err != nil {
		st.runtime.ApplyDefaults()
		return apperr.Wrap(apperr.KindIO, "config.storage", "config file is not valid INI, applied defaults", err)
	}

	degraded := false
	for _, sec := range f.Sections() {
		name := strings.ToLower(sec.Name())
		if name == ini.DefaultSection {
			continue
		}
		if name == "users" {
			if err := st.loadUsersSection(sec); err != nil {
				degraded = true
				st.logger.WithError(err).Warn("skipped malformed [users] entry")
			}
			continue
		}
		for _, key := range sec.Keys() {
			keyName := strings.ToLower(key.Name())
			if err := st.runtime.SetString(name, keyName, key.Value()); err != nil {
				degraded = true
				st.logger.WithError(err).Warn(fmt.Sprintf("skipped invalid config value %s.%s", name, keyName))
			}
		}
	}
	if degraded {
		st.logger.Warn("config load completed in degraded mode: one or more fields were rejected and left at prior values")
	}
	return nil
}

// loadUsersSection parses "<name>.password_hash", "<name>.ha1" and
// "<name>.level" keys directly into the Runtime's user map, bypassing
// hashPassword (the on-disk value is already a digest).
func (st *Storage) loadUsersSection(sec *ini.Section) error {
	type partial struct {
		hash, ha1, level string
	}
	byUser := map[string]*partial{}
	for _, key := range sec.Keys() {
		parts := strings.SplitN(key.Name(), ".", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed user key %q", key.Name())
		}
		name, field := parts[0], parts[1]
		p := byUser[name]
		if p == nil {
			p = &partial{}
			byUser[name] = p
		}
		switch field {
		case "password_hash":
			p.hash = key.Value()
		case "ha1":
			p.ha1 = key.Value()
		case "level":
			p.level = key.Value()
		default:
			return fmt.Errorf("unknown user field %q", field)
		}
	}
	var firstErr error
	for name, p := range byUser {
		if p.hash == "" || p.level == "" {
			firstErr = fmt.Errorf("user %q missing password_hash or level", name)
			continue
		}
		if err := st.runtime.restoreUser(name, p.hash, p.ha1, p.level); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Save serialises every non-default field of snap, grouped by section in
// sectionOrder, followed by a trailing checksum line covering every byte
// written before it. The write goes to a temp file in the same directory,
// fsynced, then renamed over path — spec.md §4.9 "atomic write".
func (st *Storage) Save(snap *Snapshot) error {
	var body bytes.Buffer
	for _, section := range sectionOrder {
		if section == "users" {
			writeUsersSection(&body, snap)
			continue
		}
		writeSchemaSection(&body, st.runtime.schema, section, snap)
	}

	sum := crc32.ChecksumIEEE(body.Bytes())
	body.WriteString(fmt.Sprintf("%s=%08x\n", checksumKey, sum))

	dir := filepath.Dir(st.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(st.path)+".tmp-*")
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "config.storage", "failed to create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(body.Bytes()); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.KindIO, "config.storage", "failed to write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.KindIO, "config.storage", "failed to fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.KindIO, "config.storage", "failed to close temp file", err)
	}
	if err := os.Rename(tmpPath, st.path); err != nil {
		return apperr.Wrap(apperr.KindIO, "config.storage", "failed to rename temp file into place", err)
	}
	return nil
}

func writeSchemaSection(body *bytes.Buffer, schema *Schema, section string, snap *Snapshot) {
	var lines []string
	for _, e := range schema.Entries() {
		if e.Section != section {
			continue
		}
		v := e.Get(snap)
		if v == e.DefaultLit {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s=%s", e.Key, v))
	}
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(body, "[%s]\n", section)
	for _, l := range lines {
		body.WriteString(l)
		body.WriteByte('\n')
	}
}

func writeUsersSection(body *bytes.Buffer, snap *Snapshot) {
	if len(snap.Users) == 0 {
		return
	}
	names := make([]string, 0, len(snap.Users))
	for name := range snap.Users {
		names = append(names, name)
	}
	sort.Strings(names)

	body.WriteString("[users]\n")
	for _, name := range names {
		u := snap.Users[name]
		fmt.Fprintf(body, "%s.password_hash=%s\n", name, u.HashedPassword)
		fmt.Fprintf(body, "%s.ha1=%s\n", name, u.HA1)
		fmt.Fprintf(body, "%s.level=%s\n", name, u.Level)
	}
}

// splitChecksum separates the trailing "checksum=<hex>" line from the rest
// of the file. The checksum line must be the last non-empty line.
func splitChecksum(raw []byte) (body []byte, sum string, ok bool) {
	text := string(raw)
	idx := strings.LastIndex(text, "\n"+checksumKey+"=")
	if idx == -1 {
		if strings.HasPrefix(text, checksumKey+"=") {
			idx = -1 // handled below as a single-line file
		} else {
			return nil, "", false
		}
	}
	var line string
	if idx == -1 {
		line = text
		body = nil
	} else {
		body = raw[:idx+1]
		line = text[idx+1:]
	}
	line = strings.TrimRight(line, "\r\n")
	scanner := bufio.NewScanner(strings.NewReader(line))
	scanner.Split(bufio.ScanLines)
	if !scanner.Scan() {
		return nil, "", false
	}
	kv := strings.SplitN(scanner.Text(), "=", 2)
	if len(kv) != 2 || kv[0] != checksumKey {
		return nil, "", false
	}
	return body, strings.TrimSpace(kv[1]), true
}
