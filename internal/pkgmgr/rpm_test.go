package pkgmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUpdateCount(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want int
	}{
		{"clean exit", "0\n", 0},
		{"error exit still checked", "1\n", 0},
		{"updates pending", "curl.x86_64 8.0-1 updates\n100\n", 1},
		{"garbage last line", "something went wrong\n", 0},
		{"empty output", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkUpdateCount(tt.out))
		})
	}
}

func TestRpmCheck(t *testing.T) {
	r := NewMockRunner()
	r.Set(dnfCheck, MockResult{Stdout: "kernel.x86_64 5.14-1 baseos\n100\n", Stderr: " repo warning \n"})

	m, err := ForFamily("rpm")
	require.NoError(t, err)

	count, note, err := m.Check(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "repo warning", note)
}

func TestCountDnfActions(t *testing.T) {
	out := " Upgrading        : curl-8.0-1.x86_64\n Installing       : kernel-core\n Downgrading      : foo-1.0\n Verifying        : bar\n"
	assert.Equal(t, 3, countDnfActions(out))
}

func TestRpmSimulate(t *testing.T) {
	r := NewMockRunner()
	r.Set(dnfSimulate, MockResult{ExitCode: 1, Stdout: " Upgrading : curl\n Upgrading : bash\nOperation aborted.\n"})

	m, _ := ForFamily("rpm")
	p, err := m.Simulate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
	assert.Contains(t, p.Detail, "Upgrading : curl")
}

func TestRpmAutoremoveUnsupported(t *testing.T) {
	m, _ := ForFamily("rpm")
	_, _, err := m.Autoremove(context.Background(), NewMockRunner())
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = m.AutoremovePreview(context.Background(), NewMockRunner())
	assert.ErrorIs(t, err, ErrUnsupported)
}
