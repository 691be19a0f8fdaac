package pkgmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountInstLines(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want int
	}{
		{
			name: "inst lines only",
			out:  "Inst curl [7.88.1-10] (7.88.1-10+deb12u5)\nInst bash (5.2.15 Debian:12)\nConf curl (7.88.1-10+deb12u5)\n",
			want: 2,
		},
		{
			name: "summary fallback",
			out:  "Reading package lists...\n5 upgraded, 0 newly installed, 0 to remove and 0 not upgraded.\n",
			want: 5,
		},
		{
			name: "inst lines win over summary",
			out:  "Inst curl\n1 upgraded, 0 newly installed, 0 to remove\n",
			want: 1,
		},
		{
			name: "nothing pending",
			out:  "Reading package lists...\n0 upgraded, 0 newly installed, 0 to remove and 0 not upgraded.\n",
			want: 0,
		},
		{
			name: "empty output",
			out:  "",
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countInstLines(tt.out))
		})
	}
}

func TestCountRemvLines(t *testing.T) {
	assert.Equal(t, 2, countRemvLines("Remv libfoo [1.0]\nRemv libbar [2.0]\nConf something\n"))
	assert.Equal(t, 3, countRemvLines("The following packages will be REMOVED:\n  a b c\n0 upgraded, 0 newly installed, 3 to remove and 0 not upgraded.\n"))
	assert.Equal(t, 0, countRemvLines(""))
}

func TestDebianCheck(t *testing.T) {
	r := NewMockRunner()
	r.Set(aptRefresh, MockResult{})
	r.Set(aptDryRun, MockResult{Stdout: "Inst curl\nInst bash\nConf curl\n"})

	m, err := ForFamily("debian")
	require.NoError(t, err)

	count, note, err := m.Check(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Empty(t, note)
}

func TestDebianCheck_Timeout(t *testing.T) {
	r := NewMockRunner()
	r.Set(aptRefresh, MockResult{})
	r.Set(aptDryRun, MockResult{ExitCode: 124, Stderr: "Timeout after 90s: apt-get -s dist-upgrade"})

	m, _ := ForFamily("debian")
	count, note, err := m.Check(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, "Timeout", note)
}

func TestDebianSimulate_UpgradableFallback(t *testing.T) {
	r := NewMockRunner()
	r.Set(aptRefresh, MockResult{})
	r.Set(aptDryRun, MockResult{Stdout: "Reading package lists...\n"})
	r.Set(aptListUpgradable, MockResult{Stdout: "3\n"})

	m, _ := ForFamily("debian")
	p, err := m.Simulate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Count)
	assert.Equal(t, "Reading package lists...\n", p.Detail)
}

func TestDebianUpgrade_DrainsRefreshFirst(t *testing.T) {
	r := NewMockRunner()
	r.Set(aptRefreshStream, MockResult{Lines: []string{"Hit:1 http://deb.debian.org bookworm InRelease"}})
	r.Set(aptUpgradeStream, MockResult{Lines: []string{"Unpacking curl", "Setting up curl"}})

	m, _ := ForFamily("debian")
	lines, exit, err := m.Upgrade(context.Background(), r)
	require.NoError(t, err)

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	assert.Equal(t, []string{"Unpacking curl", "Setting up curl"}, got)
	assert.Equal(t, 0, <-exit)
	assert.Equal(t, []string{aptRefreshStream, aptUpgradeStream}, r.Calls())
}

func TestDebianAutoremovePreview(t *testing.T) {
	r := NewMockRunner()
	r.Set(aptAutoremoveSim, MockResult{Stdout: "Remv old-kernel [6.1]\nRemv old-headers [6.1]\n"})

	m, _ := ForFamily("debian")
	p, err := m.AutoremovePreview(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
}
