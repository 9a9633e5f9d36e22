package tools

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"typstlab/internal/pathguard"
)

// extractArchive unpacks archivePath into dest. Entry names must pass the
// path guard; links are skipped since only a regular executable is needed.
func extractArchive(archivePath, name, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &ExtractionError{Archive: name, Err: err}
	}
	var err error
	switch archiveFormat(name) {
	case ".zip":
		err = extractZip(archivePath, dest)
	case ".tar.gz", ".tgz":
		err = extractTarGz(archivePath, dest)
	case ".tar.xz":
		err = extractTarXz(archivePath, dest)
	default:
		err = fmt.Errorf("unsupported archive format")
	}
	if err != nil {
		return &ExtractionError{Archive: name, Err: err}
	}
	return nil
}

func entryTarget(dest, entry string) (string, error) {
	if err := pathguard.CheckRelative(entry); err != nil {
		return "", err
	}
	return securejoin.SecureJoin(dest, entry)
}

func extractZip(archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		target, err := entryTarget(dest, file.Name)
		if err != nil {
			return err
		}
		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case mode.IsRegular():
			rc, err := file.Open()
			if err != nil {
				return fmt.Errorf("open zip entry %s: %w", file.Name, err)
			}
			err = writeEntry(target, rc, mode)
			rc.Close()
			if err != nil {
				return err
			}
		default:
			// Symlinks and devices are never needed.
		}
	}
	return nil
}

func extractTarGz(archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	return untarStream(gz, dest)
}

func extractTarXz(archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	xzr, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("xz reader: %w", err)
	}
	return untarStream(xzr, dest)
}

func untarStream(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		target, err := entryTarget(dest, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, fs.FileMode(header.Mode)); err != nil {
				return err
			}
		default:
			// Ignore links and other entry types.
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare file %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

// findExecutable returns the single regular file named name below root.
func findExecutable(root, name string) (string, error) {
	var matches []string
	err := pathguard.Walk(root, func(rel string, d fs.DirEntry) error {
		if d.Type().IsRegular() && d.Name() == name {
			matches = append(matches, filepath.Join(root, rel))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("executable %s not found in archive", name)
	default:
		return "", fmt.Errorf("archive contains %d files named %s", len(matches), name)
	}
}
