package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/orrn/bundler/internal/core"
)

// Packer writes a user's selected files into a single zip archive.
// Files are addressed by base name inside the archive; when two entries
// share a base name the first occurrence wins and later ones are
// skipped, so output is deterministic for a given entry order.
type Packer struct {
	filesRoot string
}

func NewPacker(filesRoot string) *Packer {
	return &Packer{filesRoot: filesRoot}
}

func (p *Packer) Pack(ctx context.Context, stagingDir, archiveName string, entries []*core.FileEntry) (core.PackResult, error) {
	result := core.PackResult{
		ArchivePath: filepath.Join(stagingDir, archiveName+".zip"),
	}

	out, err := os.Create(result.ArchivePath)
	if err != nil {
		return result, fmt.Errorf("create archive file: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	seen := make(map[string]bool)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return result, err
		}

		base := filepath.Base(entry.Name)
		if seen[base] {
			result.Skipped++
			logrus.WithFields(logrus.Fields{
				"entry": entry.Name,
				"name":  base,
			}).Warn("duplicate archive member name, keeping first occurrence")
			continue
		}

		src, err := os.Open(filepath.Join(p.filesRoot, entry.Name))
		if err != nil {
			if os.IsNotExist(err) {
				result.Skipped++
				logrus.WithField("entry", entry.Name).Warn("file content missing, skipping")
				continue
			}
			zw.Close()
			return result, fmt.Errorf("open %s: %w", entry.Name, err)
		}

		w, err := zw.Create(base)
		if err != nil {
			src.Close()
			zw.Close()
			return result, fmt.Errorf("add %s to archive: %w", base, err)
		}
		if _, err := io.Copy(w, src); err != nil {
			src.Close()
			zw.Close()
			return result, fmt.Errorf("write %s to archive: %w", base, err)
		}
		src.Close()

		seen[base] = true
		result.Packed++
	}

	if err := zw.Close(); err != nil {
		return result, fmt.Errorf("finalize archive: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return result, fmt.Errorf("stat archive: %w", err)
	}
	result.SizeBytes = info.Size()

	return result, nil
}
