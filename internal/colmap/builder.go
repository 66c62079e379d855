package colmap

import (
	"strconv"
	"strings"

	"github.com/backmassage/sfmrunner/internal/config"
)

// Subcommands of the reconstruction tool used by the pipeline.
const (
	CmdFeatureExtractor  = "feature_extractor"
	CmdExhaustiveMatcher = "exhaustive_matcher"
	CmdMapper            = "mapper"
	CmdModelConverter    = "model_converter"
)

// Invocation is a single external process call: the executable and its
// arguments, in order, exactly as they reach execve.
type Invocation struct {
	Executable string
	Args       []string
}

// Subcommand returns the first argument, which selects the tool's mode.
func (inv Invocation) Subcommand() string {
	if len(inv.Args) == 0 {
		return ""
	}
	return inv.Args[0]
}

// Argv returns the executable followed by the arguments.
func (inv Invocation) Argv() []string {
	return append([]string{inv.Executable}, inv.Args...)
}

// String renders the invocation for display, quoting any argument a POSIX
// shell would split or expand. It is never executed.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	for _, a := range inv.Argv() {
		parts = append(parts, displayQuote(a))
	}
	return strings.Join(parts, " ")
}

func displayQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:+,@%", r)
}

// FeatureExtraction detects keypoints for every image in imagesDir and
// stores them in the database.
func FeatureExtraction(tool, database, imagesDir string) Invocation {
	return Invocation{
		Executable: tool,
		Args: []string{
			CmdFeatureExtractor,
			"--database_path", database,
			"--image_path", imagesDir,
		},
	}
}

// ExhaustiveMatching matches every image pair in the database. Cost grows
// quadratically with the image count; vocab_tree_matcher is the usual
// alternative for large sets and is not wired here.
func ExhaustiveMatching(tool, database string) Invocation {
	return Invocation{
		Executable: tool,
		Args: []string{
			CmdExhaustiveMatcher,
			"--database_path", database,
		},
	}
}

// SparseReconstruction runs the incremental mapper, writing numbered models
// (0, 1, ...) under outputDir.
func SparseReconstruction(tool, database, imagesDir, outputDir string, opts config.MapperOptions) Invocation {
	return Invocation{
		Executable: tool,
		Args: []string{
			CmdMapper,
			"--database_path", database,
			"--image_path", imagesDir,
			"--output_path", outputDir,
			"--Mapper.init_min_num_inliers", strconv.Itoa(opts.InitMinNumInliers),
			"--Mapper.init_max_error", formatFloat(opts.InitMaxError),
			"--Mapper.init_max_forward_motion", formatFloat(opts.InitMaxForwardMotion),
			"--Mapper.init_min_tri_angle", formatFloat(opts.InitMinTriAngle),
		},
	}
}

// ModelConversion rewrites the model in inputDir into outputDir using
// outputType ("TXT" or "BIN").
func ModelConversion(tool, inputDir, outputDir, outputType string) Invocation {
	return Invocation{
		Executable: tool,
		Args: []string{
			CmdModelConverter,
			"--input_path", inputDir,
			"--output_path", outputDir,
			"--output_type", outputType,
		},
	}
}

// formatFloat prints the shortest exact form but always keeps a decimal
// point, so 8 is passed as "8.0".
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
