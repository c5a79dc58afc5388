package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letstravel/prospensity/core/model"
	"github.com/letstravel/prospensity/ingest"
	"github.com/letstravel/prospensity/journal"
	"github.com/letstravel/prospensity/pipeline"
	"github.com/letstravel/prospensity/pkg/config"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
	"github.com/letstravel/prospensity/training"
)

// rawCRM renders n customer rows in the shape of the CRM export, including a
// duplicated row, a few missing cells and the "Fe Male" typo.
func rawCRM(n int) string {
	var sb strings.Builder
	sb.WriteString("CustomerID,ProdTaken,Age,TypeofContact,CityTier,Occupation,Gender,NumberOfPersonVisiting,NumberOfChildrenVisiting,MaritalStatus,Passport,Designation,MonthlyIncome\n")
	contacts := []string{"Self Enquiry", "Company Invited"}
	occupations := []string{"Salaried", "Small Business", "Large Business"}
	genders := []string{"Male", "Female", "Fe Male"}
	marital := []string{"Married", "Unmarried", "Divorced", "Single"}
	designations := []string{"Executive", "Manager", "Senior Manager", "AVP"}
	for i := 0; i < n; i++ {
		passport := (i / 3) % 2
		designation := designations[i%4]
		taken := 0
		if passport == 1 && designation == "Executive" {
			taken = 1
		}
		age := fmt.Sprint(25 + i%35)
		if i%17 == 0 {
			age = ""
		}
		fmt.Fprintf(&sb, "%d,%d,%s,%s,%d,%s,%s,%d,%d,%s,%d,%s,%d\n",
			200000+i, taken, age, contacts[i%2], 1+i%3, occupations[i%3], genders[i%3],
			1+i%4, i%3, marital[i%4], passport, designation, 15000+(i%9)*1100)
	}
	// exact duplicate of the first row
	lines := strings.SplitN(sb.String(), "\n", 3)
	sb.WriteString(lines[1] + "\n")
	return sb.String()
}

func writeRaw(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "raw", "tourism.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(rawCRM(n)), 0o644))
	return path
}

func testOptions(t *testing.T, dir string) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.ArtifactPath = filepath.Join(dir, "models", "model.gob")
	opts.Params.NEstimators = 15
	opts.RunID = "run-test"
	return opts
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	logger, buf := log.NewTestLogger(log.LevelInfo)

	opts := testOptions(t, dir)
	opts.Source = ingest.Source{Path: writeRaw(t, dir, 240)}
	opts.CleanedPath = filepath.Join(dir, "cleaned", "cleaned.csv")
	opts.JournalPath = filepath.Join(dir, "runs.db")
	opts.ReportDir = filepath.Join(dir, "reports")
	opts.Logger = logger

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, "run-test", res.RunID)
	assert.Equal(t, 241, res.RawRows)
	assert.Equal(t, 240, res.CleanRows)
	require.NotNil(t, res.Training)
	assert.Equal(t, 48, res.Training.Report.Support)
	assert.Greater(t, res.Training.Report.Accuracy, 0.8)
	assert.Len(t, res.Reports, 2)

	for _, path := range []string{opts.ArtifactPath, opts.ArtifactPath + ".metrics.json", opts.CleanedPath} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	p, err := pipeline.Load(opts.ArtifactPath)
	require.NoError(t, err)
	assert.NotContains(t, p.InputColumns(), "CustomerID")
	assert.NotContains(t, p.InputColumns(), "ProdTaken")
	assert.Contains(t, p.InputColumns(), "TotalPersonVisiting")
	assert.Contains(t, p.InputColumns(), "isChildrenVisiting")

	meta, err := model.ReadMetadata(opts.ArtifactPath + ".metrics.json")
	require.NoError(t, err)
	assert.Equal(t, "run-test", meta.RunID)

	j, err := journal.Open(opts.JournalPath)
	require.NoError(t, err)
	defer j.Close()
	entry, ok, err := j.Get(context.Background(), "run-test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.StatusSucceeded, entry.Status)
	assert.Equal(t, 241, entry.RawRows)
	require.NotNil(t, entry.Metrics)
	assert.Equal(t, res.Training.Report.Accuracy, entry.Metrics.Accuracy)

	out := buf.String()
	for _, msg := range []string{"Training pipeline started", "Raw data loaded", "Data cleaned", "Training partition ready", "Pipeline saved", "Training pipeline completed"} {
		assert.Contains(t, out, msg)
	}
}

func TestRunSourceNotFoundLeavesArtifact(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(t, dir)
	opts.Source = ingest.Source{Path: filepath.Join(dir, "does-not-exist.csv")}
	opts.JournalPath = filepath.Join(dir, "runs.db")

	require.NoError(t, os.MkdirAll(filepath.Dir(opts.ArtifactPath), 0o755))
	previous := []byte("previous artifact")
	require.NoError(t, os.WriteFile(opts.ArtifactPath, previous, 0o644))

	logger, buf := log.NewTestLogger(log.LevelInfo)
	opts.Logger = logger
	res, err := Run(context.Background(), opts)
	assert.Nil(t, res)

	var nf *perrors.SourceNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, log.StageIngest, StageOf(err))
	assert.True(t, perrors.IsTransient(err))

	got, readErr := os.ReadFile(opts.ArtifactPath)
	require.NoError(t, readErr)
	assert.Equal(t, previous, got)
	assert.Contains(t, buf.String(), "Pipeline stage failed")

	j, err := journal.Open(opts.JournalPath)
	require.NoError(t, err)
	defer j.Close()
	entry, ok, err := j.Get(context.Background(), "run-test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.StatusFailed, entry.Status)
	assert.Equal(t, log.StageIngest, entry.Stage)
}

func TestRunStageErrors(t *testing.T) {
	dir := t.TempDir()
	raw := writeRaw(t, dir, 60)

	t.Run("empty source", func(t *testing.T) {
		path := filepath.Join(dir, "empty.csv")
		require.NoError(t, os.WriteFile(path, []byte("CustomerID,ProdTaken\n"), 0o644))
		opts := testOptions(t, t.TempDir())
		opts.Source = ingest.Source{Path: path}
		_, err := Run(context.Background(), opts)
		var es *perrors.EmptySourceError
		assert.ErrorAs(t, err, &es)
		assert.Equal(t, log.StageIngest, StageOf(err))
	})

	t.Run("missing target", func(t *testing.T) {
		opts := testOptions(t, t.TempDir())
		opts.Source = ingest.Source{Path: raw}
		opts.Target = "Purchased"
		_, err := Run(context.Background(), opts)
		var ve *perrors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "Purchased", ve.ParamName)
		assert.True(t, perrors.IsPrecondition(err))
		assert.Equal(t, log.StageIngest, StageOf(err))
		_, statErr := os.Stat(opts.ArtifactPath)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("unwritable artifact", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
		opts := testOptions(t, dir)
		opts.Source = ingest.Source{Path: raw}
		opts.ArtifactPath = filepath.Join(blocker, "model.gob")
		_, err := Run(context.Background(), opts)
		var pe *perrors.PersistenceError
		assert.ErrorAs(t, err, &pe)
		assert.Equal(t, log.StageTrain, StageOf(err))
	})

	assert.Equal(t, "", StageOf(perrors.New("unrelated")))
}

func TestRunZeroOptionsTakeDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := rawCRM(120) + "300000,0,40,Self Enquiry,1,Free Lancer,Male,2,1,Married,1,Manager,18000\n"
	path := filepath.Join(dir, "tourism.csv")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	opts := Options{
		Source:       ingest.Source{Path: path},
		ArtifactPath: filepath.Join(dir, "model.gob"),
		CleanedPath:  filepath.Join(dir, "cleaned.csv"),
	}
	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	p, err := pipeline.Load(opts.ArtifactPath)
	require.NoError(t, err)
	assert.NotContains(t, p.InputColumns(), "CustomerID")
	assert.NotContains(t, p.InputColumns(), "ProdTaken")

	cleaned, err := os.ReadFile(opts.CleanedPath)
	require.NoError(t, err)
	assert.NotContains(t, string(cleaned), "CustomerID")
	assert.NotContains(t, string(cleaned), "Free Lancer")
	assert.Contains(t, string(cleaned), ",Other,")

	_, err = Run(context.Background(), Options{Source: ingest.Source{Path: path}})
	var ve *perrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "ArtifactPath", ve.ParamName)
}

func TestOptionsWithDefaults(t *testing.T) {
	def := DefaultOptions()

	got := Options{}.withDefaults()
	assert.Equal(t, def.Target, got.Target)
	assert.Equal(t, def.IDColumn, got.IDColumn)
	assert.Equal(t, def.RareThreshold, got.RareThreshold)
	assert.Equal(t, def.TestSize, got.TestSize)
	assert.Equal(t, def.Params, got.Params)
	assert.Zero(t, got.SampleSize)

	got = Options{
		Target:     "Bought",
		SamplePath: "sample.csv",
		Params:     training.ClassifierParams{NEstimators: 7},
	}.withDefaults()
	assert.Equal(t, "Bought", got.Target)
	assert.Equal(t, def.SampleSize, got.SampleSize)
	assert.Equal(t, 7, got.Params.NEstimators)
	assert.Equal(t, def.Params.LearningRate, got.Params.LearningRate)
	assert.Equal(t, def.Params.MaxDepth, got.Params.MaxDepth)
	assert.Zero(t, got.Params.RegLambda)
}

type fakeGetter struct {
	objects map[string]string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestRunRemoteSourceWritesSample(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(t, dir)
	opts.Source = ingest.Source{Bucket: "crm", Key: "exports/tourism.csv"}
	opts.Client = &fakeGetter{objects: map[string]string{"crm/exports/tourism.csv": rawCRM(120)}}
	opts.SamplePath = filepath.Join(dir, "samples", "sample.csv")
	opts.SampleSize = 25

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 121, res.RawRows)

	data, err := os.ReadFile(opts.SamplePath)
	require.NoError(t, err)
	assert.Equal(t, 26, strings.Count(string(data), "\n"))

	opts.Source.Key = "exports/missing.csv"
	_, err = Run(context.Background(), opts)
	var nf *perrors.SourceNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.New()
	cfg.Source = "s3://crm/raw.csv"
	cfg.Classifier.NEstimators = 42
	cfg.RandomState = 7

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ingest.Source{Bucket: "crm", Key: "raw.csv"}, opts.Source)
	assert.Equal(t, 42, opts.Params.NEstimators)
	assert.Equal(t, 0.1, opts.Params.RegAlpha)
	assert.Equal(t, 5.0, opts.Params.RegLambda)
	assert.Equal(t, 7, opts.Params.RandomState)
	assert.Equal(t, uint64(7), opts.RandomState)

	cfg.Source = "s3://nokey"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
