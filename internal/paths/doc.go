// Provides platform-appropriate paths for cradle.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS. The program name "cradle" is used as the subdirectory under each
// base path.
package paths
