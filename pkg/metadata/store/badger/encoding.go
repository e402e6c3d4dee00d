package badger

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// ============================================================================
// Key Namespace
// ============================================================================
//
// Integers are big-endian so that prefix scans return keys in numeric order.
// Criteria inside keys are JSON-encoded; JSON never contains a raw NUL, which
// therefore separates two criteria unambiguously.
//
// Data Type              Prefix  Key Format                                Value
// ==========================================================================================
// Counters               "n:"    n:fs | n:<fs>e | n:<fs>f                  uint64
// Filesystems            "s:"    s:<fs>                                    Filesystem (JSON)
// Aliases                "a:"    a:<alias>                                 fs (uint64)
// Filesystem grants      "g:"    g:<fs><criterion>                         FilesystemGrant (JSON)
// Entries                "e:"    e:<fs><entry>                             Entry (JSON)
// Children               "c:"    c:<fs><parentKey><name>                   entry (uint64)
// Entry grants           "p:"    p:<fs><entry><criterion>\x00<revocation>  EntryGrant (JSON)
// Files                  "f:"    f:<fs><file>                              File (JSON)
// Reclaim index          "x:"    x:<expiresUnixNano><fs><file>             empty

const (
	prefixCounter    = "n:"
	prefixFilesystem = "s:"
	prefixAlias      = "a:"
	prefixFSGrant    = "g:"
	prefixEntry      = "e:"
	prefixChild      = "c:"
	prefixEntryGrant = "p:"
	prefixFile       = "f:"
	prefixReclaim    = "x:"
)

func appendUint(b []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

func key(prefix string, ids ...int64) []byte {
	b := make([]byte, 0, len(prefix)+8*len(ids))
	b = append(b, prefix...)
	for _, id := range ids {
		b = appendUint(b, id)
	}
	return b
}

func keyFilesystemCounter() []byte {
	return []byte(prefixCounter + "fs")
}

func keyEntryCounter(fs metadata.FilesystemID) []byte {
	return append(key(prefixCounter, int64(fs)), 'e')
}

func keyFileCounter(fs metadata.FilesystemID) []byte {
	return append(key(prefixCounter, int64(fs)), 'f')
}

func keyFilesystem(fs metadata.FilesystemID) []byte {
	return key(prefixFilesystem, int64(fs))
}

func keyAlias(alias string) []byte {
	return []byte(prefixAlias + alias)
}

func keyFSGrant(fs metadata.FilesystemID, c metadata.Criterion) []byte {
	return append(keyFSGrantPrefix(fs), encodeCriterion(c)...)
}

func keyFSGrantPrefix(fs metadata.FilesystemID) []byte {
	return key(prefixFSGrant, int64(fs))
}

func keyEntry(fs metadata.FilesystemID, id metadata.EntryID) []byte {
	return key(prefixEntry, int64(fs), int64(id))
}

func keyEntryPrefix(fs metadata.FilesystemID) []byte {
	return key(prefixEntry, int64(fs))
}

func parentKey(parent *metadata.EntryID) int64 {
	if parent == nil {
		return 0
	}
	return int64(*parent)
}

func keyChild(fs metadata.FilesystemID, parent *metadata.EntryID, name string) []byte {
	return append(keyChildPrefix(fs, parent), name...)
}

func keyChildPrefix(fs metadata.FilesystemID, parent *metadata.EntryID) []byte {
	return key(prefixChild, int64(fs), parentKey(parent))
}

func keyEntryGrant(fs metadata.FilesystemID, entry metadata.EntryID, c, revocation metadata.Criterion) []byte {
	b := keyEntryGrantPrefix(fs, entry)
	b = append(b, encodeCriterion(c)...)
	b = append(b, 0)
	return append(b, encodeCriterion(revocation)...)
}

func keyEntryGrantPrefix(fs metadata.FilesystemID, entry metadata.EntryID) []byte {
	return key(prefixEntryGrant, int64(fs), int64(entry))
}

func keyFile(fs metadata.FilesystemID, id metadata.FileID) []byte {
	return key(prefixFile, int64(fs), int64(id))
}

func keyReclaim(expires time.Time, fs metadata.FilesystemID, id metadata.FileID) []byte {
	return key(prefixReclaim, expires.UnixNano(), int64(fs), int64(id))
}

// decodeReclaimKey returns the expiry, filesystem and file of a reclaim key.
func decodeReclaimKey(k []byte) (int64, metadata.FilesystemID, metadata.FileID) {
	b := k[len(prefixReclaim):]
	return int64(binary.BigEndian.Uint64(b[0:8])),
		metadata.FilesystemID(binary.BigEndian.Uint64(b[8:16])),
		metadata.FileID(binary.BigEndian.Uint64(b[16:24]))
}

func encodeCriterion(c metadata.Criterion) []byte {
	// Marshalling a struct of strings cannot fail.
	b, _ := json.Marshal(c)
	return b
}

func encodeUint(v int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(v))
}

func decodeUint(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func jsonUnmarshal(b []byte, v any) error {
	return json.Unmarshal(b, v)
}
