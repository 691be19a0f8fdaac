package pkgmgr

import (
	"context"
	"strconv"
	"strings"

	"github.com/andrej220/fleetup/internal/distro"
)

const (
	// checkupdates ships with pacman-contrib; hosts without it report 0.
	pacmanCheck         = `bash -lc 'command -v checkupdates >/dev/null 2>&1 && checkupdates | wc -l || echo 0'`
	pacmanList          = `bash -lc 'command -v checkupdates >/dev/null 2>&1 && checkupdates || true'`
	pacmanUpgradeStream = `sudo -n pacman -Syu --noconfirm`
)

type archManager struct{}

func (archManager) Family() distro.Family { return distro.Arch }

func (archManager) Check(ctx context.Context, r Runner) (int, string, error) {
	_, out, stderr, err := r.Run(ctx, pacmanCheck)
	if err != nil {
		return 0, "", err
	}
	n, aerr := strconv.Atoi(strings.TrimSpace(out))
	if aerr != nil {
		n = 0
	}
	return clamp(n), strings.TrimSpace(stderr), nil
}

func countNonBlank(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func (archManager) Simulate(ctx context.Context, r Runner) (Preview, error) {
	_, out, stderr, err := r.Run(ctx, pacmanList)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Count: clamp(countNonBlank(out)), Detail: out, Note: strings.TrimSpace(stderr)}, nil
}

func (archManager) Upgrade(ctx context.Context, r Runner) (<-chan string, <-chan int, error) {
	return r.Stream(ctx, pacmanUpgradeStream)
}

func (archManager) AutoremovePreview(ctx context.Context, r Runner) (Preview, error) {
	return Preview{}, ErrUnsupported
}

func (archManager) Autoremove(ctx context.Context, r Runner) (<-chan string, <-chan int, error) {
	return nil, nil, ErrUnsupported
}
