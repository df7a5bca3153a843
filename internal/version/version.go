// Package version holds the parlower CLI's build fingerprint.
package version

import "github.com/fatih/color"

// GitCommit, GitMessage and BuildDate can be overridden at build time via
// -ldflags -X. Version cannot: it is assembled at package init from
// colored parts, and -X does not apply to a non-constant initializer.

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI.
	Version = versionMajorColor.Sprint("0") + "." + versionMinorColor.Sprint("1") + "." + versionPatchColor.Sprint("0") + "-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)
