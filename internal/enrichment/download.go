package enrichment

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrEmptyDownload is returned when the remote payload contains no database bytes
	ErrEmptyDownload = errors.New("downloaded database is empty")
	// ErrNoDatabaseInArchive is returned when a tar archive holds no .mmdb member
	ErrNoDatabaseInArchive = errors.New("archive contains no .mmdb file")
)

const (
	tarMagicOffset = 257
	tarMagic       = "ustar"
)

// editionURL expands the {edition} and {license_key} placeholders
func (m *Manager) editionURL(edition string) string {
	return strings.NewReplacer(
		"{edition}", edition,
		"{license_key}", m.cfg.LicenseKey,
	).Replace(m.cfg.URLTemplate)
}

func (m *Manager) newRequest(ctx context.Context, method, edition string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, m.editionURL(edition), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(m.cfg.AccountID, m.cfg.LicenseKey)
	req.Header.Set("User-Agent", "website-analysis/geoip-updater")
	return req, nil
}

// download retrieves one edition into a temporary file, validates it and renames it into place.
// The live file is never touched unless the replacement opened successfully.
func (m *Manager) download(ctx context.Context, edition string) error {
	m.setState(edition, StateDownloading, nil)

	req, err := m.newRequest(ctx, http.MethodGet, edition)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", edition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", edition, resp.Status)
	}

	tmp, err := os.CreateTemp(m.cfg.Dir, edition+"-*.download")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := extractDatabase(resp.Body, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", edition, err)
	}
	if written == 0 {
		return ErrEmptyDownload
	}

	m.setState(edition, StateValidating, nil)
	db, err := m.open(tmpPath)
	if err != nil {
		return fmt.Errorf("validate %s: %w", edition, err)
	}
	_ = db.Close()

	finalPath := m.editionPath(edition)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("install %s: %w", edition, err)
	}
	committed = true

	// Local mtime mirrors the remote Last-Modified; freshness checks compare the two
	if lastModified, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		if err := os.Chtimes(finalPath, lastModified, lastModified); err != nil {
			m.logger.Debug("Failed to set database modification time", m.logger.Args("edition", edition, "error", err))
		}
	}

	m.logger.Info("Location database installed",
		m.logger.Args("edition", edition, "path", finalPath, "bytes", written))
	return nil
}

// extractDatabase copies the database out of a tar.gz archive, a gzip stream or a raw .mmdb body
func extractDatabase(body io.Reader, dst io.Writer) (int64, error) {
	src := bufio.NewReader(body)

	magic, _ := src.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return 0, err
		}
		defer gz.Close()
		src = bufio.NewReader(gz)
	}

	header, _ := src.Peek(tarMagicOffset + len(tarMagic))
	if len(header) == tarMagicOffset+len(tarMagic) && string(header[tarMagicOffset:]) == tarMagic {
		return extractFromTar(tar.NewReader(src), dst)
	}

	return io.Copy(dst, src)
}

func extractFromTar(tr *tar.Reader, dst io.Writer) (int64, error) {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return 0, ErrNoDatabaseInArchive
		}
		if err != nil {
			return 0, err
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".mmdb") {
			continue
		}

		n, err := io.Copy(dst, tr)
		if err != nil {
			return n, err
		}
		if n != hdr.Size {
			return n, io.ErrUnexpectedEOF
		}
		return n, nil
	}
}

// remoteIsNewer asks the server for the edition's modification time without downloading it
func (m *Manager) remoteIsNewer(ctx context.Context, edition string) (bool, error) {
	info, err := os.Stat(m.editionPath(edition))
	if err != nil {
		return true, nil
	}

	req, err := m.newRequest(ctx, http.MethodHead, edition)
	if err != nil {
		return false, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("freshness check %s: %w", edition, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("freshness check %s: unexpected status %s", edition, resp.Status)
	}

	remote, err := http.ParseTime(resp.Header.Get("Last-Modified"))
	if err != nil {
		// No remote timestamp: always refresh
		return true, nil
	}
	return remote.After(info.ModTime().Add(time.Second)), nil
}

func (m *Manager) editionPath(edition string) string {
	return filepath.Join(m.cfg.Dir, edition+".mmdb")
}
