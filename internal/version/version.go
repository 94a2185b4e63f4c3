// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version houses the version information of xecd.
package version

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
)

// semanticAlphabet defines the allowed characters for the pre-release and
// build metadata portions of a semantic version string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// semverRE splits a semantic version string into its constituent parts.
var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*` +
	`[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

var (
	// Version is the application version per the semantic versioning 2.0.0
	// spec (https://semver.org/).  It may be overridden at build time with
	// '-ldflags "-X github.com/xecnode/xecd/internal/version.Version=x.y.z"'.
	Version = "0.1.0-pre"

	// The components below are parsed from Version during init.
	Major         uint
	Minor         uint
	Patch         uint
	PreRelease    string
	BuildMetadata string
)

// semVer holds the parsed components of a semantic version string.
type semVer struct {
	major, minor, patch uint
	pre, build          string
}

// parseSemVer parses the components of the passed semantic version string.
func parseSemVer(s string) (semVer, error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		return semVer{}, fmt.Errorf("malformed version string %q: does not "+
			"conform to semver specification", s)
	}

	var nums [3]uint
	for i, name := range []string{"major", "minor", "patch"} {
		val, err := strconv.ParseUint(m[i+1], 10, 0)
		if err != nil {
			return semVer{}, fmt.Errorf("malformed semver %s: %w", name, err)
		}
		nums[i] = uint(val)
	}
	return semVer{
		major: nums[0],
		minor: nums[1],
		patch: nums[2],
		pre:   m[4],
		build: m[5],
	}, nil
}

func init() {
	v, err := parseSemVer(Version)
	if err != nil {
		panic(err)
	}
	Major, Minor, Patch = v.major, v.minor, v.patch
	PreRelease, BuildMetadata = v.pre, v.build
}

// vcsCommitID returns the abbreviated git revision the binary was built from
// or an empty string when it is unknown.
func vcsCommitID() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var vcs, revision string
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs":
			vcs = bs.Value
		case "vcs.revision":
			revision = bs.Value
		}
	}
	if vcs != "git" {
		return ""
	}
	if len(revision) > 9 {
		revision = revision[:9]
	}
	return revision
}

// String returns the application version.  The commit the binary was built
// from is added as build metadata when the version does not carry any.
func String() string {
	if BuildMetadata != "" {
		return Version
	}
	if commit := NormalizeString(vcsCommitID()); commit != "" {
		return Version + "+" + commit
	}
	return Version
}

// NormalizeString returns the passed string stripped of all characters which
// are not valid in pre-release and build metadata strings.
func NormalizeString(str string) string {
	var sb strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
