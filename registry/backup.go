package registry

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/yllada/swiftrdp/common"
)

// ArchiveKind selects the bundle file name. The content is identical.
type ArchiveKind int

const (
	KindBackup ArchiveKind = iota
	KindExport
)

// FileName returns the archive name written for the kind.
func (k ArchiveKind) FileName() string {
	if k == KindExport {
		return "swiftrdp-export.tar.zst"
	}
	return "swiftrdp-backup.tar.zst"
}

// maxMemberSize bounds each archived file when restoring.
const maxMemberSize = 64 << 20

// Archiver bundles the connection and group files into one portable
// tar+zstd archive and restores them.
type Archiver struct {
	connections *Store
	groups      *GroupStore
}

// NewArchiver creates an archiver over both stores.
func NewArchiver(connections *Store, groups *GroupStore) *Archiver {
	return &Archiver{connections: connections, groups: groups}
}

// Export writes the archive into targetDir and returns its path.
// Missing store files are skipped rather than archived empty.
func (a *Archiver) Export(targetDir string, kind ArchiveKind) (string, error) {
	if err := os.MkdirAll(targetDir, 0700); err != nil {
		return "", common.NewStorageError("create", targetDir, err)
	}

	members := make(map[string][]byte)
	// Connections are loaded through the store so pending id migrations
	// are part of the snapshot.
	profiles, err := a.connections.Load()
	if err != nil {
		return "", err
	}
	members[common.ConnectionsFileName] = encodeRecords(profiles)

	if common.FileExists(a.groups.Path()) {
		groups, err := a.groups.List()
		if err != nil {
			return "", err
		}
		members[common.GroupsFileName] = encodeGroups(groups)
	}

	var buf bytes.Buffer
	if err := writeArchive(&buf, members); err != nil {
		return "", err
	}

	target := filepath.Join(targetDir, kind.FileName())
	if err := common.AtomicWriteFile(target, buf.Bytes(), 0600); err != nil {
		return "", err
	}
	common.LogInfo("Wrote %s with %d file(s)", target, len(members))
	return target, nil
}

// writeArchive emits members in a fixed order as a zstd-compressed tar.
func writeArchive(w io.Writer, members map[string][]byte) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	now := time.Now()
	for _, name := range []string{common.ConnectionsFileName, common.GroupsFileName} {
		data, ok := members[name]
		if !ok {
			continue
		}
		hdr := &tar.Header{
			Name:     name,
			Mode:     0600,
			Size:     int64(len(data)),
			ModTime:  now,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	return zw.Close()
}

// Import restores the stores from an archive and returns the names of the
// files it replaced. Only files present in the archive are overwritten.
func (a *Archiver) Import(archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, common.NewStorageError("open", archivePath, err)
	}
	defer f.Close()

	tmpDir, err := os.MkdirTemp("", "swiftrdp-import-*")
	if err != nil {
		return nil, common.NewStorageError("create", os.TempDir(), err)
	}
	defer os.RemoveAll(tmpDir)

	extracted, err := extractArchive(f, tmpDir)
	if err != nil {
		return nil, err
	}
	if len(extracted) == 0 {
		return nil, fmt.Errorf("%w: no connection or group data found", common.ErrInvalidArchive)
	}

	replaced := make([]string, 0, len(extracted))
	for _, name := range []string{common.ConnectionsFileName, common.GroupsFileName} {
		if !extracted[name] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, name))
		if err != nil {
			return replaced, common.NewStorageError("read", name, err)
		}

		switch name {
		case common.ConnectionsFileName:
			err = a.connections.replaceRaw(data)
		case common.GroupsFileName:
			err = a.groups.replaceRaw(data)
		}
		if err != nil {
			return replaced, err
		}
		replaced = append(replaced, name)
	}

	common.LogInfo("Imported %v from %s", replaced, archivePath)
	return replaced, nil
}

// extractArchive unpacks the known members into dir. Unknown members are
// ignored; anything that is not a plain file with a known name is rejected.
func extractArchive(r io.Reader, dir string) (map[string]bool, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidArchive, err)
	}
	defer zr.Close()

	found := make(map[string]bool)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidArchive, err)
		}

		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || name != filepath.Base(name) || name == ".." {
			return nil, fmt.Errorf("%w: unexpected path %q", common.ErrInvalidArchive, hdr.Name)
		}
		if name != common.ConnectionsFileName && name != common.GroupsFileName {
			common.LogDebug("Skipping unknown archive member %s", hdr.Name)
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			return nil, fmt.Errorf("%w: %s is not a regular file", common.ErrInvalidArchive, name)
		}
		if hdr.Size > maxMemberSize {
			return nil, fmt.Errorf("%w: %s is too large", common.ErrInvalidArchive, name)
		}

		dst := filepath.Join(dir, name)
		out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return nil, common.NewStorageError("create", dst, err)
		}
		_, err = io.Copy(out, io.LimitReader(tr, maxMemberSize))
		closeErr := out.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidArchive, err)
		}
		if closeErr != nil {
			return nil, common.NewStorageError("write", dst, closeErr)
		}
		found[name] = true
	}
	return found, nil
}
