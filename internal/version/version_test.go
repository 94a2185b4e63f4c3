// Copyright (c) 2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import "testing"

// TestSemVerParsing ensures parsing a semantic version string works as
// expected.
func TestSemVerParsing(t *testing.T) {
	tests := []struct {
		ver     string // semantic version string to parse
		want    semVer // expected components
		invalid bool   // expected error
	}{{
		ver:  "0.1.0-pre",
		want: semVer{major: 0, minor: 1, patch: 0, pre: "pre"},
	}, {
		ver:  "10.20.30",
		want: semVer{major: 10, minor: 20, patch: 30},
	}, {
		ver:  "1.1.2-prerelease+meta",
		want: semVer{major: 1, minor: 1, patch: 2, pre: "prerelease", build: "meta"},
	}, {
		ver:  "1.0.0-alpha.beta.1+meta-valid",
		want: semVer{pre: "alpha.beta.1", build: "meta-valid", major: 1},
	}, {
		ver:     "1.2",
		invalid: true,
	}, {
		ver:     "01.1.1",
		invalid: true,
	}, {
		ver:     "1.2.3-0123",
		invalid: true,
	}, {
		ver:     "1.2.3+meta!",
		invalid: true,
	}, {
		ver:     "99999999999999999999999.1.1",
		invalid: true,
	}}

	for _, test := range tests {
		got, err := parseSemVer(test.ver)
		if test.invalid {
			if err == nil {
				t.Errorf("%q: did not receive expected error", test.ver)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", test.ver, err)
			continue
		}
		if got != test.want {
			t.Errorf("%q: mismatched components -- got %+v, want %+v",
				test.ver, got, test.want)
		}
	}
}

// TestNormalizeString ensures characters that are not allowed in pre-release
// and build metadata strings are removed.
func TestNormalizeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "abc123", want: "abc123"},
		{in: "a b+c_d", want: "abcd"},
		{in: "rel-1.0", want: "rel-1.0"},
		{in: "!@#$", want: ""},
	}

	for _, test := range tests {
		if got := NormalizeString(test.in); got != test.want {
			t.Errorf("%q: got %q, want %q", test.in, got, test.want)
		}
	}
}
