package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	"github.com/roelfdiedericks/gocoach/internal/paths"
)

// ProgressFunc receives bytes downloaded so far and the expected total.
type ProgressFunc func(done, total int64)

// downloadClient has no overall timeout; the context bounds the transfer.
var downloadClient = &http.Client{}

// DownloadModel downloads a whisper model into destDir.
// The file is written to <name>.download and renamed on completion, so an
// interrupted download never looks like a usable model.
func DownloadModel(ctx context.Context, model *WhisperModel, destDir string, progress ProgressFunc) (string, error) {
	if model == nil {
		return "", fmt.Errorf("model is nil")
	}

	expandedDir, err := paths.ExpandTilde(destDir)
	if err != nil {
		return "", fmt.Errorf("expand path: %w", err)
	}
	if err := paths.EnsureDir(expandedDir); err != nil {
		return "", fmt.Errorf("create models directory: %w", err)
	}

	destPath := filepath.Join(expandedDir, model.Name)
	if IsModelDownloaded(expandedDir, model.Name) {
		L_debug("stt: model already present", "path", destPath)
		return destPath, nil
	}
	tempPath := destPath + ".download"

	L_info("stt: downloading model", "model", model.Name, "size", model.Size)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, model.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	totalSize := resp.ContentLength
	if totalSize <= 0 {
		totalSize = model.SizeBytes
	}

	tempFile, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	pr := &progressReader{r: resp.Body, total: totalSize, fn: progress}
	_, copyErr := io.Copy(tempFile, pr)
	closeErr := tempFile.Close()
	if copyErr != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("read response: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("close file: %w", closeErr)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename file: %w", err)
	}
	if progress != nil {
		progress(pr.done, pr.done)
	}

	L_info("stt: download complete", "model", model.Name, "path", destPath)
	return destPath, nil
}

// progressReader reports progress at most every 250ms.
type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    ProgressFunc
	last  time.Time
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.done += int64(n)
	if p.fn != nil && time.Since(p.last) >= 250*time.Millisecond {
		p.last = time.Now()
		total := p.total
		if p.done > total {
			total = p.done
		}
		p.fn(p.done, total)
	}
	return n, err
}
