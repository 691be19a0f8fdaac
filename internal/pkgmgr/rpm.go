package pkgmgr

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/andrej220/fleetup/internal/distro"
)

const (
	dnfCheck         = `sudo -n dnf -q check-update; echo $?`
	dnfSimulate      = `sudo -n dnf -q upgrade --refresh --assumeno`
	dnfUpgradeStream = `sudo -n dnf -y upgrade --refresh`
)

var dnfActionLine = regexp.MustCompile(`Upgrading|Downgrading|Installing`)

type rpmManager struct{}

func (rpmManager) Family() distro.Family { return distro.RPM }

// checkUpdateCount interprets dnf check-update's exit code, echoed as the
// last stdout line. Codes 0 and 1 mean "checked, nothing actionable";
// anything else is a coarse one-pending signal, not an exact count.
func checkUpdateCount(out string) int {
	last := "0"
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) > 0 && lines[len(lines)-1] != "" {
		last = strings.TrimSpace(lines[len(lines)-1])
	}
	rc, err := strconv.Atoi(last)
	if err != nil {
		rc = 0
	}
	if rc == 0 || rc == 1 {
		return 0
	}
	return 1
}

func (rpmManager) Check(ctx context.Context, r Runner) (int, string, error) {
	_, out, stderr, err := r.Run(ctx, dnfCheck)
	if err != nil {
		return 0, "", err
	}
	return clamp(checkUpdateCount(out)), strings.TrimSpace(stderr), nil
}

func countDnfActions(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if dnfActionLine.MatchString(line) {
			n++
		}
	}
	return n
}

func (rpmManager) Simulate(ctx context.Context, r Runner) (Preview, error) {
	_, out, stderr, err := r.Run(ctx, dnfSimulate)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Count: clamp(countDnfActions(out)), Detail: out, Note: strings.TrimSpace(stderr)}, nil
}

func (rpmManager) Upgrade(ctx context.Context, r Runner) (<-chan string, <-chan int, error) {
	return r.Stream(ctx, dnfUpgradeStream)
}

func (rpmManager) AutoremovePreview(ctx context.Context, r Runner) (Preview, error) {
	return Preview{}, ErrUnsupported
}

func (rpmManager) Autoremove(ctx context.Context, r Runner) (<-chan string, <-chan int, error) {
	return nil, nil, ErrUnsupported
}
