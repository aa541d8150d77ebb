// Parses flags and configures logging for the slipway CLI.
//
// The CLI accepts the following global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level before the selected
// subcommand runs.
//
// The build command resolves its containerd connection from flags first, then
// the SLIPWAY_ADDRESS and SLIPWAY_NAMESPACE environment variables, then
// built-in defaults.
package cli
