package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/andrej220/fleetup/internal/fleet"
)

// Fire-and-forget reboot: the command backgrounds and disowns the actual
// reboot so the shell can still echo the acknowledgment before the host
// goes down.
const (
	rebootPrimary  = `bash -lc 'nohup sudo -n systemctl reboot >/dev/null 2>&1 & disown; echo TRIGGERED'`
	rebootFallback = `bash -lc 'nohup sudo -n reboot >/dev/null 2>&1 & disown; echo TRIGGERED'`

	rebootAck        = "TRIGGERED"
	rebootAckTimeout = 10 * time.Second
)

// reboot triggers a restart on an already-open session. A transport
// error while the trigger commands run is reinterpreted as success: a
// host that is actually rebooting cannot keep the session open. This is
// the one path where connection drop means ok.
func (r *Runner) reboot(ctx context.Context, sess Session, res fleet.OperationResult) fleet.OperationResult {
	code, out, errOut, err := sess.RunTimeout(ctx, rebootPrimary, rebootAckTimeout)
	if err != nil {
		res.Status = fleet.StatusOK
		res.Note = "reboot (connection closed): " + err.Error()
		return res
	}
	if code == 0 && strings.Contains(out, rebootAck) {
		res.Status = fleet.StatusOK
		res.Note = "reboot triggered"
		return res
	}

	code2, out2, errOut2, err2 := sess.RunTimeout(ctx, rebootFallback, rebootAckTimeout)
	if err2 != nil {
		res.Status = fleet.StatusOK
		res.Note = "reboot (connection closed): " + err2.Error()
		return res
	}
	if code2 == 0 && strings.Contains(out2, rebootAck) {
		res.Status = fleet.StatusOK
		res.Note = "reboot triggered"
		return res
	}

	res.Status = fleet.StatusError
	res.Note = firstNonEmpty(strings.TrimSpace(errOut), strings.TrimSpace(errOut2), "reboot not acknowledged")
	return res
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
