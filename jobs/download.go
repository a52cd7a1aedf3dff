package jobs

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
)

const downloadChunkSize = 64 * 1024

// progressReportInterval throttles Handle.Progress calls so a fast link
// doesn't spam progress_percent updates on every 64KB chunk.
const progressReportInterval = 200 * time.Millisecond

// DownloadWorker builds a Worker that fetches sourceURL into destDir/destName
// (spec.md §4.C). It is the concrete implementation behind the
// download_model and download_voice job kinds: it polls
// h.CancelRequested() before the request, between every chunk, and before
// finalization, reports throttled progress via h.Progress, and removes the
// partial artifact on cancellation or failure rather than leaving a
// truncated file behind. Grounded on backend/tts.go and backend/stt.go's
// *http.Client request/response handling, generalized from a JSON round
// trip to a streamed download.
func DownloadWorker(client *http.Client, sourceURL, destDir, destName string) Worker {
	return func(h Handle) (string, error) {
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return "", core.Wrap("jobs.DownloadWorker", core.KindInternal, "creating output dir", err)
		}

		if h.CancelRequested() {
			return "", core.New("jobs.DownloadWorker", core.KindCancelled, "cancelled before start")
		}

		req, err := http.NewRequestWithContext(h.Context(), http.MethodGet, sourceURL, nil)
		if err != nil {
			return "", core.Wrap("jobs.DownloadWorker", core.KindInputInvalid, "building request", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", core.Wrap("jobs.DownloadWorker", core.KindBackendUnavailable, sourceURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", core.New("jobs.DownloadWorker", core.KindBackendRejected, "unexpected status "+resp.Status)
		}

		tmp, err := os.CreateTemp(destDir, ".download-*.tmp")
		if err != nil {
			return "", core.Wrap("jobs.DownloadWorker", core.KindInternal, "creating temp file", err)
		}
		tmpPath := tmp.Name()
		abort := func() {
			tmp.Close()
			os.Remove(tmpPath)
		}

		total := resp.ContentLength
		var written int64
		lastReport := time.Now()
		buf := make([]byte, downloadChunkSize)

		for {
			if h.CancelRequested() {
				abort()
				return "", core.New("jobs.DownloadWorker", core.KindCancelled, "cancelled mid-download")
			}

			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
					abort()
					return "", core.Wrap("jobs.DownloadWorker", core.KindInternal, "writing chunk", writeErr)
				}
				written += int64(n)

				if total > 0 && time.Since(lastReport) >= progressReportInterval {
					h.Progress(int(written * 100 / total))
					lastReport = time.Now()
				}
			}

			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				abort()
				return "", core.Wrap("jobs.DownloadWorker", core.KindBackendProtocol, "reading response body", readErr)
			}
		}

		if err := tmp.Close(); err != nil {
			os.Remove(tmpPath)
			return "", core.Wrap("jobs.DownloadWorker", core.KindInternal, "closing temp file", err)
		}

		if h.CancelRequested() {
			os.Remove(tmpPath)
			return "", core.New("jobs.DownloadWorker", core.KindCancelled, "cancelled before finalization")
		}

		finalPath := filepath.Join(destDir, destName)
		if err := os.Rename(tmpPath, finalPath); err != nil {
			os.Remove(tmpPath)
			return "", core.Wrap("jobs.DownloadWorker", core.KindInternal, "finalizing artifact", err)
		}

		h.Progress(100)
		return finalPath, nil
	}
}
