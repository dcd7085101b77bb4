package main

import "testing"

func TestVersionString(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{name: "commit appended", version: "v0.3.0", commit: "abc123", want: "v0.3.0+abc123"},
		{name: "long commit shortened", version: "v0.3.0", commit: "0123456789abcdef", want: "v0.3.0+0123456789ab"},
		{name: "commit already in version", version: "v0.3.0-abc123", commit: "abc123", want: "v0.3.0-abc123"},
		{name: "no commit", version: " 1.0 ", commit: " ", want: "1.0"},
		{name: "dev with explicit commit", version: "", commit: "a1", want: "dev+a1"},
	}

	origVersion, origCommit := version, commit
	t.Cleanup(func() {
		version, commit = origVersion, origCommit
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version = tt.version
			commit = tt.commit
			if got := versionString(); got != tt.want {
				t.Fatalf("versionString() = %q, want %q", got, tt.want)
			}
		})
	}
}
