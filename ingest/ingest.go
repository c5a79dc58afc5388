// Package ingest loads the raw customer table from a local CSV file or an S3 object.
//
// Loading is all-or-nothing: there are no retries and no partial tables. Column names
// are normalized (trimmed, embedded spaces removed) before the table is returned.
package ingest

import (
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/letstravel/prospensity/core/table"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

// Sample export defaults.
const (
	DefaultSampleSize = 1000
	DefaultSampleSeed = 42
)

// Ingestor reads raw data. Client is only required for remote sources.
type Ingestor struct {
	Client     ObjectGetter
	SampleSize int
	SampleSeed uint64

	// Required lists columns every loaded table must carry after name
	// normalization.
	Required []string

	logger log.Logger
}

// NewIngestor creates an ingestor with the default sample settings.
func NewIngestor() *Ingestor {
	return &Ingestor{
		SampleSize: DefaultSampleSize,
		SampleSeed: DefaultSampleSeed,
	}
}

// WithClient sets the object store client used by LoadObject.
func (in *Ingestor) WithClient(c ObjectGetter) *Ingestor {
	in.Client = c
	return in
}

// WithSample sets the sample size and seed used by SaveSample.
func (in *Ingestor) WithSample(size int, seed uint64) *Ingestor {
	in.SampleSize = size
	in.SampleSeed = seed
	return in
}

// WithRequiredColumns makes loading fail when any of cols is absent.
func (in *Ingestor) WithRequiredColumns(cols ...string) *Ingestor {
	in.Required = cols
	return in
}

// WithLogger sets the logger.
func (in *Ingestor) WithLogger(l log.Logger) *Ingestor {
	in.logger = l
	return in
}

func (in *Ingestor) getLogger() log.Logger {
	if in.logger == nil {
		in.logger = log.GetLoggerWithName("ingest")
	}
	return in.logger.With(log.StageKey, log.StageIngest)
}

// Load dispatches to LoadFile or LoadObject.
func (in *Ingestor) Load(ctx context.Context, src Source) (*table.Table, error) {
	if src.IsRemote() {
		return in.LoadObject(ctx, src.Bucket, src.Key)
	}
	return in.LoadFile(ctx, src.Path)
}

// LoadFile reads a CSV file. A missing file is a SourceNotFoundError and a file
// without data rows is an EmptySourceError.
func (in *Ingestor) LoadFile(ctx context.Context, path string) (*table.Table, error) {
	logger := in.getLogger().With(log.SourceKey, path)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = perrors.NewSourceNotFoundError(path, err)
		} else {
			err = perrors.Wrapf(err, "opening %s", path)
		}
		logger.Error("Data ingestion failed", err)
		return nil, err
	}
	defer f.Close()

	t, err := in.decode(f, path)
	if err != nil {
		logger.Error("Data ingestion failed", err)
		return nil, err
	}
	logger.Info("Data loaded",
		log.RowsKey, t.NumRows(),
		log.ColumnsKey, t.NumCols(),
		log.DurationMsKey, time.Since(start).Milliseconds())
	return t, nil
}

// LoadObject fetches an object and decodes it as CSV. A missing bucket or key is a
// SourceNotFoundError.
func (in *Ingestor) LoadObject(ctx context.Context, bucket, key string) (*table.Table, error) {
	location := Source{Bucket: bucket, Key: key}.String()
	logger := in.getLogger().With("bucket", bucket, "key", key)
	if in.Client == nil {
		err := perrors.NewValidationError("client", "no object store client configured", location)
		logger.Error("Data ingestion failed", err)
		return nil, err
	}
	start := time.Now()

	out, err := in.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var (
			noKey    *types.NoSuchKey
			noBucket *types.NoSuchBucket
			notFound *types.NotFound
		)
		if perrors.As(err, &noKey) || perrors.As(err, &noBucket) || perrors.As(err, &notFound) {
			err = perrors.NewSourceNotFoundError(location, err)
		} else {
			err = perrors.Wrapf(err, "fetching %s", location)
		}
		logger.Error("Data ingestion failed", err)
		return nil, err
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		err = perrors.Wrapf(err, "reading %s", location)
		logger.Error("Data ingestion failed", err)
		return nil, err
	}

	t, err := in.decode(bytes.NewReader(body), location)
	if err != nil {
		logger.Error("Data ingestion failed", err)
		return nil, err
	}
	logger.Info("Data loaded",
		log.SourceKey, location,
		"bytes", len(body),
		log.RowsKey, t.NumRows(),
		log.ColumnsKey, t.NumCols(),
		log.DurationMsKey, time.Since(start).Milliseconds())
	return t, nil
}

func (in *Ingestor) decode(r io.Reader, location string) (*table.Table, error) {
	t, err := table.ReadCSV(r)
	if err != nil {
		return nil, perrors.Wrapf(err, "parsing %s", location)
	}
	if t.NumRows() == 0 {
		return nil, perrors.NewEmptySourceError(location)
	}
	if err := t.NormalizeColumnNames(); err != nil {
		return nil, err
	}
	for _, name := range in.Required {
		if !t.HasColumn(name) {
			return nil, perrors.NewValidationError(name, "required column missing from "+location, nil)
		}
	}
	return t, nil
}

// SaveSample writes min(SampleSize, rows) uniformly drawn rows to path as CSV,
// keeping their original order.
func (in *Ingestor) SaveSample(t *table.Table, path string) error {
	logger := in.getLogger()
	if in.SampleSize <= 0 {
		err := perrors.NewValidationError("sample_size", "must be positive", in.SampleSize)
		logger.Error("Saving sample failed", err)
		return err
	}

	n := t.NumRows()
	k := min(in.SampleSize, n)
	rng := rand.New(rand.NewPCG(in.SampleSeed, in.SampleSeed))
	idx := rng.Perm(n)[:k]
	slices.Sort(idx)

	if err := table.SaveCSV(path, t.SelectRows(idx)); err != nil {
		logger.Error("Saving sample failed", err, log.PathKey, path)
		return err
	}
	logger.Info("Sample saved", log.PathKey, path, log.RowsKey, k)
	return nil
}
