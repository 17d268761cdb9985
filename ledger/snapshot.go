package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/maxpert/xidledger/encoding"
	"github.com/rs/zerolog/log"
)

// SnapshotVersion is the manifest format written by WriteSnapshot
const SnapshotVersion uint16 = 2

// snapshotMagic opens every snapshot stream
var snapshotMagic = []byte("XIDSNAP\x01")

// ErrBadSnapshot is returned when a snapshot stream cannot be decoded
var ErrBadSnapshot = errors.New("bad ledger snapshot")

// SnapshotManifest describes the ledger image that follows it in a snapshot.
// Digest travels after the image, inside the compressed body, and is filled
// in once the image has been written or restored.
type SnapshotManifest struct {
	Version   uint16 `msgpack:"version" json:"version"`
	Counter   uint64 `msgpack:"counter" json:"counter"`
	Size      int64  `msgpack:"size" json:"size"`
	Digest    uint64 `msgpack:"-" json:"digest"`
	CreatedAt int64  `msgpack:"created_at" json:"created_at"`
}

// WriteSnapshot writes a point-in-time image of the first counter xids to w:
// magic, a length-prefixed msgpack manifest, then a zstd stream holding the
// ledger bytes followed by their 8-byte xxhash64. The image is streamed from
// the file. counter must not exceed the durable header; statuses of xids
// written concurrently are captured at whatever value they hold when read.
func (s *Store) WriteSnapshot(w io.Writer, counter uint64) (SnapshotManifest, error) {
	if counter > s.Header() {
		return SnapshotManifest{}, fmt.Errorf("%w: snapshot counter %d beyond header %d", ErrInvalidXID, counter, s.Header())
	}

	manifest := SnapshotManifest{
		Version:   SnapshotVersion,
		Counter:   counter,
		Size:      ExpectedSize(counter),
		CreatedAt: time.Now().UnixNano(),
	}
	raw, err := encoding.Marshal(manifest)
	if err != nil {
		return manifest, err
	}

	if _, err := w.Write(snapshotMagic); err != nil {
		return manifest, err
	}
	if _, err := w.Write(encoding.Int32Bytes(int32(len(raw)))); err != nil {
		return manifest, err
	}
	if _, err := w.Write(raw); err != nil {
		return manifest, err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return manifest, err
	}
	digest, err := s.streamImage(enc, counter)
	if err != nil {
		enc.Close()
		return manifest, err
	}
	if _, err := enc.Write(encoding.Uint64Bytes(digest)); err != nil {
		enc.Close()
		return manifest, err
	}
	if err := enc.Close(); err != nil {
		return manifest, err
	}
	manifest.Digest = digest

	log.Info().
		Str("path", s.path).
		Uint64("counter", counter).
		Uint64("digest", manifest.Digest).
		Msg("Wrote ledger snapshot")
	return manifest, nil
}

// streamImage writes the counter header and the status bytes of xids
// 1..counter to w and returns their xxhash64.
func (s *Store) streamImage(w io.Writer, counter uint64) (uint64, error) {
	h := xxhash.New()
	out := io.MultiWriter(w, h)

	if _, err := out.Write(encoding.Uint64Bytes(counter)); err != nil {
		return 0, err
	}
	n, err := io.Copy(out, ledgerReader{
		r:    io.NewSectionReader(s.file, HeaderLen, int64(counter)),
		path: s.path,
	})
	if err != nil {
		return 0, err
	}
	if uint64(n) != counter {
		return 0, ErrLedgerIO{Op: "snapshot", Path: s.path, Err: io.ErrUnexpectedEOF}
	}
	return h.Sum64(), nil
}

// ledgerReader tags read failures on the ledger file so they are not
// mistaken for failures of the snapshot destination.
type ledgerReader struct {
	r    io.Reader
	path string
}

func (l ledgerReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if err != nil && err != io.EOF {
		err = ErrLedgerIO{Op: "snapshot", Path: l.path, Err: err}
	}
	return n, err
}

// ReadSnapshotManifest consumes the snapshot preamble from r
func ReadSnapshotManifest(r io.Reader) (SnapshotManifest, error) {
	var manifest SnapshotManifest

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return manifest, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if !bytes.Equal(magic, snapshotMagic) {
		return manifest, fmt.Errorf("%w: bad magic", ErrBadSnapshot)
	}

	lenBuf := make([]byte, encoding.Int32Len)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return manifest, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	n := encoding.ParseInt32(lenBuf)
	if n <= 0 || n > 4096 {
		return manifest, fmt.Errorf("%w: manifest length %d", ErrBadSnapshot, n)
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return manifest, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if err := encoding.Unmarshal(raw, &manifest); err != nil {
		return manifest, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if manifest.Version != SnapshotVersion {
		return manifest, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, manifest.Version)
	}
	if manifest.Counter > MaxXID || manifest.Size != ExpectedSize(manifest.Counter) {
		return manifest, fmt.Errorf("%w: manifest size %d does not match counter %d",
			ErrCorrupt, manifest.Size, manifest.Counter)
	}
	return manifest, nil
}

// RestoreSnapshot creates a new ledger at FileName(base) from a snapshot
// stream. The target must not exist. On any failure the partial file is
// removed.
func RestoreSnapshot(r io.Reader, base string) (manifest SnapshotManifest, err error) {
	manifest, err = ReadSnapshotManifest(r)
	if err != nil {
		return manifest, err
	}

	path := FileName(base)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return manifest, openError("restore", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(path)
		}
	}()

	dec, err := zstd.NewReader(r)
	if err != nil {
		return manifest, err
	}
	defer dec.Close()

	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(dec, manifest.Size))
	if err != nil {
		return manifest, ErrLedgerIO{Op: "restore", Path: path, Err: err}
	}
	if n != manifest.Size {
		return manifest, fmt.Errorf("%w: snapshot image is %d bytes, manifest says %d", ErrCorrupt, n, manifest.Size)
	}

	trailer := make([]byte, encoding.Int64Len)
	if _, err = io.ReadFull(dec, trailer); err != nil {
		return manifest, fmt.Errorf("%w: missing snapshot digest: %v", ErrCorrupt, err)
	}
	var extra [1]byte
	if k, _ := dec.Read(extra[:]); k != 0 {
		return manifest, fmt.Errorf("%w: trailing bytes after snapshot digest", ErrCorrupt)
	}
	manifest.Digest = encoding.ParseUint64(trailer)
	if h.Sum64() != manifest.Digest {
		return manifest, fmt.Errorf("%w: snapshot digest mismatch", ErrCorrupt)
	}

	if err = f.Sync(); err != nil {
		return manifest, ErrLedgerIO{Op: "sync restore", Path: path, Err: err}
	}
	if err = f.Close(); err != nil {
		return manifest, ErrLedgerIO{Op: "close", Path: path, Err: err}
	}

	log.Info().
		Str("path", path).
		Uint64("counter", manifest.Counter).
		Msg("Restored ledger snapshot")
	return manifest, nil
}
