package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/sfmrunner/internal/colmap"
	"github.com/backmassage/sfmrunner/internal/config"
	"github.com/backmassage/sfmrunner/internal/logging"
)

// fakeExecutor records invocations and answers them from per-subcommand
// handlers. Subcommands without a handler succeed.
type fakeExecutor struct {
	calls    []colmap.Invocation
	handlers map[string]func(inv colmap.Invocation) colmap.Result
}

func (f *fakeExecutor) Run(_ context.Context, inv colmap.Invocation) colmap.Result {
	f.calls = append(f.calls, inv)
	if h, ok := f.handlers[inv.Subcommand()]; ok {
		return h(inv)
	}
	return colmap.Result{Started: true}
}

func (f *fakeExecutor) subcommands() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Subcommand()
	}
	return out
}

// mapperCreatesModel simulates a mapper run that writes model "0".
func mapperCreatesModel(t *testing.T) func(colmap.Invocation) colmap.Result {
	return func(inv colmap.Invocation) colmap.Result {
		out := argValue(t, inv, "--output_path")
		require.NoError(t, os.MkdirAll(filepath.Join(out, "0"), 0o755))
		return colmap.Result{Started: true}
	}
}

// converterWritesFiles simulates model_converter producing the three files.
func converterWritesFiles(t *testing.T, names []string) func(colmap.Invocation) colmap.Result {
	return func(inv colmap.Invocation) colmap.Result {
		out := argValue(t, inv, "--output_path")
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(out, n), []byte("#"), 0o644))
		}
		return colmap.Result{Started: true}
	}
}

func failWith(code int, output string) func(colmap.Invocation) colmap.Result {
	return func(colmap.Invocation) colmap.Result {
		return colmap.Result{Started: true, ExitCode: code, Output: output, Err: errors.New("exit status")}
	}
}

func argValue(t *testing.T, inv colmap.Invocation, flag string) string {
	t.Helper()
	for i := 0; i+1 < len(inv.Args); i++ {
		if inv.Args[i] == flag {
			return inv.Args[i+1]
		}
	}
	t.Fatalf("%s not in %v", flag, inv.Args)
	return ""
}

// newDataset returns a dataset root containing images/ with n fake images.
func newDataset(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	images := filepath.Join(root, "images")
	require.NoError(t, os.MkdirAll(images, 0o755))
	for i := 0; i < n; i++ {
		name := filepath.Join(images, "IMG_"+string(rune('a'+i))+".jpg")
		require.NoError(t, os.WriteFile(name, []byte{0xff, 0xd8}, 0o644))
	}
	return root
}

func newRunner(t *testing.T, cfg config.Config, exec colmap.Executor) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	log, err := logging.NewWriterLogger(&cfg, &out, &out)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return New(cfg, exec, log), &out
}

func testConfig(root string) config.Config {
	cfg := config.DefaultConfig()
	cfg.DatasetRoot = root
	cfg.ColorMode = config.ColorNever
	return cfg
}

func TestRun_MissingImagesLaunchesNothing(t *testing.T) {
	root := t.TempDir()
	fake := &fakeExecutor{}
	r, out := newRunner(t, testConfig(root), fake)

	_, err := r.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsKind(err, KindPrecondition))
	assert.Empty(t, fake.calls, "no external process may run")
	assert.Contains(t, err.Error(), filepath.Join(root, "images"))
	assert.Contains(t, out.String(), "No 'images' folder found")
	assert.NoDirExists(t, filepath.Join(root, "sparse"))
}

func TestRun_ImagesIsAFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "images"), nil, 0o644))
	fake := &fakeExecutor{}
	r, _ := newRunner(t, testConfig(root), fake)

	_, err := r.Run(context.Background())

	assert.True(t, IsKind(err, KindPrecondition))
	assert.Empty(t, fake.calls)
}

func TestRun_ExtractionFailureStopsPipeline(t *testing.T) {
	root := newDataset(t, 2)
	fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
		colmap.CmdFeatureExtractor: failWith(2, "E0101 Failed to read image"),
	}}
	r, _ := newRunner(t, testConfig(root), fake)

	stats, err := r.Run(context.Background())

	require.Error(t, err)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindProcess, pe.Kind)
	assert.Equal(t, 2, pe.ExitCode)
	assert.Contains(t, pe.Hint, "could not be read")
	assert.Equal(t, []string{colmap.CmdFeatureExtractor}, fake.subcommands())
	assert.False(t, stats.Completed)
	assert.Len(t, stats.Steps, 1)
}

func TestRun_LaunchFailureStopsPipeline(t *testing.T) {
	root := newDataset(t, 1)
	fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
		colmap.CmdFeatureExtractor: func(colmap.Invocation) colmap.Result {
			return colmap.Result{ExitCode: -1, Err: exec.ErrNotFound}
		},
	}}
	r, _ := newRunner(t, testConfig(root), fake)

	_, err := r.Run(context.Background())

	assert.True(t, IsKind(err, KindLaunch))
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Len(t, fake.calls, 1)
}

func TestRun_MatcherFailureSkipsLaterSteps(t *testing.T) {
	root := newDataset(t, 2)
	fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
		colmap.CmdExhaustiveMatcher: failWith(1, ""),
	}}
	r, _ := newRunner(t, testConfig(root), fake)

	_, err := r.Run(context.Background())

	assert.True(t, IsKind(err, KindProcess))
	assert.Equal(t, []string{colmap.CmdFeatureExtractor, colmap.CmdExhaustiveMatcher}, fake.subcommands())
}

func TestRun_MapperWithoutModelIsPostconditionFailure(t *testing.T) {
	root := newDataset(t, 2)
	fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
		colmap.CmdMapper: func(colmap.Invocation) colmap.Result {
			return colmap.Result{Started: true}
		},
	}}
	cfg := testConfig(root)
	cfg.TeeToolOutput = false
	r, out := newRunner(t, cfg, fake)

	_, err := r.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsKind(err, KindPostcondition))
	assert.False(t, IsKind(err, KindProcess))
	assert.Contains(t, err.Error(), noModelHint)
	assert.Equal(t, []string{colmap.CmdFeatureExtractor, colmap.CmdExhaustiveMatcher, colmap.CmdMapper}, fake.subcommands())
	assert.NoDirExists(t, filepath.Join(root, "sparse", "0_text"), "conversion output must not be created")
	assert.Contains(t, out.String(), "did not create model folder '0'")
}

func TestRun_PostconditionUsesToolDiagnosis(t *testing.T) {
	root := newDataset(t, 2)
	fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
		colmap.CmdMapper: func(colmap.Invocation) colmap.Result {
			return colmap.Result{Started: true, Output: "=> No good initial image pair found."}
		},
	}}
	cfg := testConfig(root)
	cfg.TeeToolOutput = false
	r, out := newRunner(t, cfg, fake)

	_, err := r.Run(context.Background())

	assert.True(t, IsKind(err, KindPostcondition))
	assert.Contains(t, err.Error(), "mapper could not initialize")
	assert.Contains(t, out.String(), "No good initial image pair found", "tool output is relayed when not streamed")
}

func TestRun_FormatSelection(t *testing.T) {
	tests := []struct {
		format  config.OutputFormat
		dir     string
		outType string
	}{
		{config.FormatText, "0_text", "TXT"},
		{config.FormatBinary, "0_bin_converted", "BIN"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			root := newDataset(t, 2)
			fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
				colmap.CmdMapper: mapperCreatesModel(t),
			}}
			cfg := testConfig(root)
			cfg.OutputFormat = tt.format
			r, _ := newRunner(t, cfg, fake)

			stats, err := r.Run(context.Background())
			require.NoError(t, err)

			sparse := filepath.Join(root, "sparse")
			conv := fake.calls[len(fake.calls)-1]
			want := []string{"colmap", "model_converter",
				"--input_path", filepath.Join(sparse, "0"),
				"--output_path", filepath.Join(sparse, tt.dir),
				"--output_type", tt.outType}
			if diff := cmp.Diff(want, conv.Argv()); diff != "" {
				t.Errorf("converter argv mismatch (-want +got):\n%s", diff)
			}
			assert.DirExists(t, filepath.Join(sparse, tt.dir))
			assert.Equal(t, filepath.Join(sparse, tt.dir), stats.OutputDir)
		})
	}
}

func TestRun_ExistingSparseDirIsFine(t *testing.T) {
	root := newDataset(t, 2)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sparse"), 0o755))

	for i := 0; i < 2; i++ {
		fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
			colmap.CmdMapper: mapperCreatesModel(t),
		}}
		r, _ := newRunner(t, testConfig(root), fake)
		_, err := r.Run(context.Background())
		require.NoError(t, err, "run %d", i+1)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	root := newDataset(t, 3)
	fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
		colmap.CmdMapper:         mapperCreatesModel(t),
		colmap.CmdModelConverter: converterWritesFiles(t, config.FormatText.ModelFiles()),
	}}
	r, out := newRunner(t, testConfig(root), fake)

	stats, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, stats.Completed)
	assert.Equal(t, 3, stats.Images)
	assert.Len(t, stats.Steps, 4)

	db := filepath.Join(root, "database.db")
	images := filepath.Join(root, "images")
	sparse := filepath.Join(root, "sparse")
	want := [][]string{
		{"colmap", "feature_extractor", "--database_path", db, "--image_path", images},
		{"colmap", "exhaustive_matcher", "--database_path", db},
		{"colmap", "mapper", "--database_path", db, "--image_path", images, "--output_path", sparse,
			"--Mapper.init_min_num_inliers", "10",
			"--Mapper.init_max_error", "8.0",
			"--Mapper.init_max_forward_motion", "0.95",
			"--Mapper.init_min_tri_angle", "4.0"},
		{"colmap", "model_converter", "--input_path", filepath.Join(sparse, "0"),
			"--output_path", filepath.Join(sparse, "0_text"), "--output_type", "TXT"},
	}
	got := make([][]string, len(fake.calls))
	for i, c := range fake.calls {
		got[i] = c.Argv()
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("invocations mismatch (-want +got):\n%s", diff)
	}

	log := out.String()
	assert.Contains(t, log, "All steps complete!")
	assert.Contains(t, log, "Final model saved in: "+filepath.Join(sparse, "0_text"))
	assert.Contains(t, log, "cameras.txt, images.txt, points3D.txt")
	assert.NotContains(t, log, "Expected file missing")
}

func TestRun_RelativeRootIsResolved(t *testing.T) {
	root := newDataset(t, 1)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
		colmap.CmdMapper: mapperCreatesModel(t),
	}}
	r, _ := newRunner(t, testConfig("./"), fake)

	_, err = r.Run(context.Background())
	require.NoError(t, err)

	db := argValue(t, fake.calls[0], "--database_path")
	assert.True(t, filepath.IsAbs(db), "paths passed to the tool are absolute: %s", db)
}

func TestRun_DryRun(t *testing.T) {
	root := newDataset(t, 2)
	fake := &fakeExecutor{}
	cfg := testConfig(root)
	cfg.DryRun = true
	r, out := newRunner(t, cfg, fake)

	stats, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, fake.calls)
	assert.Len(t, stats.Steps, 4)
	assert.NoDirExists(t, filepath.Join(root, "sparse"))
	assert.Contains(t, out.String(), "Command: colmap mapper")
	assert.Contains(t, out.String(), "Dry run complete")
}

func TestRun_CancelledContext(t *testing.T) {
	root := newDataset(t, 1)
	fake := &fakeExecutor{}
	r, _ := newRunner(t, testConfig(root), fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx)

	assert.True(t, IsKind(err, KindInterrupted))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.calls)
}

func TestRun_SparseDirCreationFailure(t *testing.T) {
	root := newDataset(t, 1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "sparse"), nil, 0o644))
	fake := &fakeExecutor{}
	r, _ := newRunner(t, testConfig(root), fake)

	_, err := r.Run(context.Background())

	assert.True(t, IsKind(err, KindFilesystem))
	assert.Empty(t, fake.calls)
}

func TestRunStep_ProcessFailureRelaysOutput(t *testing.T) {
	fake := &fakeExecutor{handlers: map[string]func(colmap.Invocation) colmap.Result{
		colmap.CmdExhaustiveMatcher: failWith(134, "sqlite3 error: database is locked"),
	}}
	cfg := testConfig(t.TempDir())
	cfg.TeeToolOutput = false
	r, out := newRunner(t, cfg, fake)

	res, err := r.RunStep(context.Background(), colmap.ExhaustiveMatching("colmap", "/d/db.db"), "2. feature matching")

	require.Error(t, err)
	assert.Equal(t, 134, res.ExitCode)
	assert.Contains(t, err.Error(), "2. feature matching failed with exit code 134")
	assert.Contains(t, out.String(), "Exit code: 134")
	assert.Contains(t, out.String(), "Last tool output:")
	assert.Contains(t, out.String(), "Hint: database is locked")
}
