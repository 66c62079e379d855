// Package colmap builds and executes invocations of a COLMAP-compatible
// reconstruction CLI.
//
// Every invocation is an explicit executable plus an ordered argument list;
// nothing is ever passed through a shell, so paths with spaces or shell
// metacharacters need no quoting.
//
// Layout:
//   - builder.go: one constructor per subcommand (feature_extractor,
//     exhaustive_matcher, mapper, model_converter).
//   - executor.go: the Executor interface and the os/exec implementation,
//     which tees the tool's output and keeps a bounded tail of it.
//   - errors.go: classification of that tail into a short diagnostic hint.
package colmap
