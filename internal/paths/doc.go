// Provides platform-appropriate paths for pipeline output.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows. The name "slipway" is used as the subdirectory under
// each base path.
package paths
