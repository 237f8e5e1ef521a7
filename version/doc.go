// Package version reports the build version of orderedpipe.
//
// Version, Commit and BuildTime are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/orderedpipe/version.Version=1.0.0"
//
// Missing values fall back to the VCS stamps recorded by the Go toolchain.
package version
