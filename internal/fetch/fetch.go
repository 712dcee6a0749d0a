// Package fetch resolves and downloads the monthly parquet files and
// the zone reference archive from the TLC's public CDN, caching them
// under data_dir so repeat runs never re-download.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/nyctaxi/taxietl/internal/errs"
)

const (
	parquetURLTemplate = "https://d37ci6vzurychx.cloudfront.net/trip-data/yellow_tripdata_%04d-%02d.parquet"
	zoneLookupURL       = "https://d37ci6vzurychx.cloudfront.net/misc/taxi+_zone_lookup.csv"
	zoneShapefileURL    = "https://d37ci6vzurychx.cloudfront.net/misc/taxi_zones.zip"

	maxAttempts = 3
)

// Fetcher downloads TLC source files into a local on-disk cache.
type Fetcher struct {
	dataDir string
	client  *http.Client
	log     zerolog.Logger
}

func New(dataDir string, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		dataDir: dataDir,
		client:  &http.Client{Timeout: 10 * time.Minute},
		log:     log,
	}
}

// MonthlyParquet returns the local path to the parquet file for
// (year, month), downloading it first if it is not already cached.
func (f *Fetcher) MonthlyParquet(ctx context.Context, year, month int) (string, error) {
	url := fmt.Sprintf(parquetURLTemplate, year, month)
	dest := filepath.Join(f.dataDir, "parquet", fmt.Sprintf("yellow_tripdata_%04d-%02d.parquet", year, month))
	return f.ensureCached(ctx, url, dest)
}

// ZoneLookupCSV returns the local path to the zone lookup CSV.
func (f *Fetcher) ZoneLookupCSV(ctx context.Context) (string, error) {
	dest := filepath.Join(f.dataDir, "zones", "taxi_zone_lookup.csv")
	return f.ensureCached(ctx, zoneLookupURL, dest)
}

// ZoneShapefileArchive returns the local path to the zone shapefile
// zip archive (not yet extracted — callers extract on first use).
func (f *Fetcher) ZoneShapefileArchive(ctx context.Context) (string, error) {
	dest := filepath.Join(f.dataDir, "zones", "taxi_zones.zip")
	return f.ensureCached(ctx, zoneShapefileURL, dest)
}

// ensureCached returns dest if it already exists with non-zero size;
// otherwise downloads url to a temp file and renames it into place on
// success, retrying up to maxAttempts times with exponential backoff.
func (f *Fetcher) ensureCached(ctx context.Context, url, dest string) (string, error) {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errs.New(errs.Network, fmt.Errorf("create cache dir: %w", err))
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 1 * time.Second
	policy.Multiplier = 2
	bounded := backoff.WithMaxRetries(policy, maxAttempts-1)

	var lastErr error
	attempt := 0
	op := func() error {
		attempt++
		f.log.Debug().Str("url", url).Int("attempt", attempt).Msg("fetch attempt")
		err := f.download(ctx, url, dest)
		if isNotFound(err) {
			// Authoritative "not available yet"; stop retrying.
			return backoff.Permanent(err)
		}
		lastErr = err
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(bounded, ctx)); err != nil {
		if isNotFound(err) {
			return "", errs.New(errs.NotFound, err)
		}
		if lastErr == nil {
			lastErr = err
		}
		return "", errs.New(errs.Network, fmt.Errorf("download %s after %d attempts: %w", url, attempt, lastErr))
	}
	return dest, nil
}

type notFoundError struct{ status int }

func (e *notFoundError) Error() string {
	return fmt.Sprintf("upstream returned %d (not yet published)", e.status)
}

func isNotFound(err error) bool {
	var nf *notFoundError
	return errors.As(err, &nf)
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return &notFoundError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dest)
}
