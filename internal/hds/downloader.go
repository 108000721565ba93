package hds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"hds2flv/internal/logger"
	"hds2flv/internal/models"
)

// DownloadTask pairs a fragment with the channel its result is
// delivered on.
type DownloadTask struct {
	Fragment models.Fragment
	Result   chan DownloadResult
}

// DownloadResult is the outcome of one fragment download.
type DownloadResult struct {
	Task  DownloadTask
	Data  []byte
	Error error
}

// Downloader fetches fragments concurrently with robust retry logic.
// A fixed pool of workers pulls tasks off the queue until Stop.
type Downloader struct {
	// RequestTimeout bounds every individual download attempt. Adjust
	// it before queueing the first task.
	RequestTimeout time.Duration

	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
	tasks      chan DownloadTask
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewDownloader creates a downloader running the given number of
// worker goroutines.
func NewDownloader(client *http.Client, log logger.Logger, userAgent string, workers int) *Downloader {
	if workers < 1 {
		workers = 1
	}
	d := &Downloader{
		RequestTimeout: 15 * time.Second,
		httpClient:     client,
		logger:         log,
		userAgent:      userAgent,
		tasks:          make(chan DownloadTask, workers*2),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// QueueDownload hands a task to the pool. It blocks while the queue is
// full, which throttles producers to the pool's pace.
func (d *Downloader) QueueDownload(task DownloadTask) {
	d.tasks <- task
}

// Stop closes the queue and waits for in-flight downloads to finish.
// Safe to call more than once.
func (d *Downloader) Stop() {
	d.stopOnce.Do(func() {
		close(d.tasks)
	})
	d.wg.Wait()
}

func (d *Downloader) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		data, err := d.download(task.Fragment)
		task.Result <- DownloadResult{Task: task, Data: data, Error: err}
	}
}

// download fetches a single fragment with per-attempt timeouts.
func (d *Downloader) download(frag models.Fragment) ([]byte, error) {
	const maxRetries = 3
	const retryDelay = 100 * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.RequestTimeout)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, frag.URL, nil)
		if err != nil {
			cancel()
			// This error is non-recoverable, so don't retry.
			return nil, fmt.Errorf("failed to create request for fragment %s: %w", frag.ID(), err)
		}
		if d.userAgent != "" {
			req.Header.Set("User-Agent", d.userAgent)
		}

		d.logger.Debugf("Downloading fragment %s (Attempt %d/%d)", frag.ID(), attempt, maxRetries)
		resp, err := d.httpClient.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("download attempt %d failed for fragment %s: %w", attempt, frag.ID(), err)
			d.logger.Warnf(lastErr.Error())
			time.Sleep(retryDelay)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			cancel()
			lastErr = fmt.Errorf("download attempt %d for fragment %s received non-200 status: %d", attempt, frag.ID(), resp.StatusCode)
			d.logger.Warnf(lastErr.Error())
			time.Sleep(retryDelay)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("download attempt %d for fragment %s failed while reading body: %w", attempt, frag.ID(), err)
			d.logger.Warnf(lastErr.Error())
			time.Sleep(retryDelay)
			continue
		}

		d.logger.Debugf("Successfully downloaded fragment %s (%d bytes)", frag.ID(), len(data))
		return data, nil
	}

	return nil, fmt.Errorf("failed to download fragment %s after %d attempts: %w", frag.ID(), maxRetries, lastErr)
}
