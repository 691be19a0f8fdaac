package pkgmgr

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/andrej220/fleetup/internal/distro"
	"github.com/andrej220/fleetup/internal/sshexec"
)

// Command strings run under LC_ALL=C so the parsers see untranslated output.
const (
	aptRefresh        = `bash -lc 'export LC_ALL=C LANG=C; sudo -n apt-get -qq update'`
	aptDryRun         = `bash -lc 'export LC_ALL=C LANG=C; apt-get -s dist-upgrade'`
	aptListUpgradable = `bash -lc 'export LC_ALL=C LANG=C; apt list --upgradable 2>/dev/null | tail -n +2 | wc -l'`
	aptRefreshStream  = `sudo -n apt-get update -y -o=Dpkg::Use-Pty=0`
	aptUpgradeStream  = `sudo -n DEBIAN_FRONTEND=noninteractive apt-get -y dist-upgrade -o=Dpkg::Use-Pty=0`
	aptAutoremoveSim  = `bash -lc 'export LC_ALL=C LANG=C; apt-get -s autoremove --purge'`
	aptAutoremoveRun  = `sudo -n apt-get -y autoremove --purge -o=Dpkg::Use-Pty=0`
)

var (
	upgradedSummary = regexp.MustCompile(`(\d+)\s+upgraded`)
	toRemoveSummary = regexp.MustCompile(`(\d+)\s+to remove`)
)

type debianManager struct{}

func (debianManager) Family() distro.Family { return distro.Debian }

// countInstLines counts pending install actions in apt-get -s output.
// Falls back to the "<N> upgraded" summary line when no Inst lines exist.
func countInstLines(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Inst ") {
			n++
		}
	}
	if n == 0 {
		if m := upgradedSummary.FindStringSubmatch(out); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
	}
	return n
}

// countRemvLines counts pending removals in apt-get -s autoremove output,
// with a "<N> to remove" summary fallback.
func countRemvLines(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Remv ") {
			n++
		}
	}
	if n == 0 {
		if m := toRemoveSummary.FindStringSubmatch(out); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
	}
	return n
}

func (debianManager) Check(ctx context.Context, r Runner) (int, string, error) {
	if _, _, _, err := r.Run(ctx, aptRefresh); err != nil {
		return 0, "", err
	}
	code, out, stderr, err := r.Run(ctx, aptDryRun)
	if err != nil {
		return 0, "", err
	}
	if code == sshexec.TimeoutExitCode {
		return 0, "Timeout", nil
	}
	return clamp(countInstLines(out)), strings.TrimSpace(stderr), nil
}

func (debianManager) Simulate(ctx context.Context, r Runner) (Preview, error) {
	if _, _, _, err := r.Run(ctx, aptRefresh); err != nil {
		return Preview{}, err
	}
	_, out, stderr, err := r.Run(ctx, aptDryRun)
	if err != nil {
		return Preview{}, err
	}
	n := countInstLines(out)
	if n == 0 {
		// apt-get -s can print nothing for phased updates; the
		// upgradable listing still sees them
		_, wcOut, _, werr := r.Run(ctx, aptListUpgradable)
		if werr == nil {
			if m, aerr := strconv.Atoi(strings.TrimSpace(wcOut)); aerr == nil && m > n {
				n = m
			}
		}
	}
	return Preview{Count: clamp(n), Detail: out, Note: strings.TrimSpace(stderr)}, nil
}

func (debianManager) Upgrade(ctx context.Context, r Runner) (<-chan string, <-chan int, error) {
	// refresh first; its output is noise for the caller
	lines, exit, err := r.Stream(ctx, aptRefreshStream)
	if err != nil {
		return nil, nil, err
	}
	sshexec.Drain(lines, exit)
	return r.Stream(ctx, aptUpgradeStream)
}

func (debianManager) AutoremovePreview(ctx context.Context, r Runner) (Preview, error) {
	_, out, stderr, err := r.Run(ctx, aptAutoremoveSim)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Count: clamp(countRemvLines(out)), Detail: out, Note: strings.TrimSpace(stderr)}, nil
}

func (debianManager) Autoremove(ctx context.Context, r Runner) (<-chan string, <-chan int, error) {
	return r.Stream(ctx, aptAutoremoveRun)
}
