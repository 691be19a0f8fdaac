package distro

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapID(t *testing.T) {
	tests := []struct {
		id   string
		want Family
	}{
		{"ubuntu", Debian},
		{"debian", Debian},
		{"pop", Debian},
		{"rocky", RPM},
		{"ol", RPM},
		{"manjaro", Arch},
		{"arch", Arch},
		{"gentoo", Unknown},
		{"", Unknown},
		{"UBUNTU", Debian},
		{`"ubuntu"`, Debian},
		{`'fedora'`, RPM},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, MapID(tt.id))
		})
	}
}

func TestParseOSRelease(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want Family
	}{
		{
			name: "quoted id",
			out:  "NAME=\"Ubuntu\"\nID=ubuntu\nID_LIKE=debian\n",
			want: Debian,
		},
		{
			name: "first ID wins",
			out:  "ID=\"rocky\"\nID=arch\n",
			want: RPM,
		},
		{
			name: "no id line",
			out:  "NAME=Something\nVERSION=1\n",
			want: Unknown,
		},
		{
			name: "empty",
			out:  "",
			want: Unknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOSRelease(tt.out))
		})
	}
}

func TestRegister(t *testing.T) {
	Register("nixos", Unknown)
	Register("devuan", Debian)
	assert.Equal(t, Debian, MapID("devuan"))
}

type stubRunner struct {
	code int
	out  string
	err  error
}

func (s stubRunner) Run(ctx context.Context, cmd string) (int, string, string, error) {
	return s.code, s.out, "", s.err
}

func TestDetect(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, Debian, Detect(ctx, stubRunner{out: "ID=debian\n"}))
	assert.Equal(t, Unknown, Detect(ctx, stubRunner{code: 1, out: "ID=debian\n"}))
	assert.Equal(t, Unknown, Detect(ctx, stubRunner{out: ""}))
	assert.Equal(t, Unknown, Detect(ctx, stubRunner{out: "ID=debian\n", err: errors.New("boom")}))
}
