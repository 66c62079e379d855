package colmap

import "regexp"

// diagnosis pairs a pattern seen in tool output with a short hint for the
// operator. Checked in order by [Diagnose]; the first match wins.
type diagnosis struct {
	re   *regexp.Regexp
	hint string
}

var diagnoses = []diagnosis{
	{
		regexp.MustCompile(`(?i)No good initial image pair found|Could not find good initial pair`),
		"mapper could not initialize: images may lack overlap or texture",
	},
	{
		regexp.MustCompile(`(?i)No images with matches found|No matches? found|Discarding reconstruction due to insufficient size`),
		"too few image pairs were matched to build a model",
	},
	{
		regexp.MustCompile(`(?i)database is locked`),
		"database is locked by another process",
	},
	{
		regexp.MustCompile(`(?i)(Failed|Could not|Cannot) (to )?read image|Unknown image format`),
		"an input image could not be read",
	},
	{
		regexp.MustCompile(`(?i)SiftGPU|CUDA error|out of (GPU|device) memory|OpenGL`),
		"GPU feature processing failed: a CPU-only build or more GPU memory may be needed",
	},
	{
		regexp.MustCompile(`(?i)unrecognised option|unrecognized option|unknown option|Failed to parse options`),
		"the tool rejected an option: check that its version supports these subcommands",
	},
}

// Diagnose returns a hint for known failure signatures in output, or "" when
// nothing matches.
func Diagnose(output string) string {
	for _, d := range diagnoses {
		if d.re.MatchString(output) {
			return d.hint
		}
	}
	return ""
}
