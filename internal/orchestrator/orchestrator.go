// Package orchestrator drives one operation across a batch of hosts:
// strictly sequential, one live connection at a time, every host
// guaranteed exactly one terminal result event. A single host's failure
// never aborts the batch.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andrej220/fleetup/internal/distro"
	"github.com/andrej220/fleetup/internal/fleet"
	"github.com/andrej220/fleetup/internal/lg"
	"github.com/andrej220/fleetup/internal/pkgmgr"
	"github.com/andrej220/fleetup/internal/sshexec"
)

// Registry is the slice of the host store the runner needs: record
// lookup plus the check-result write-back. *registry.Store satisfies it.
type Registry interface {
	GetHosts(ids []int64) ([]fleet.HostRecord, error)
	RecordCheckResult(id int64, ts time.Time, count *int) error
	RecordDistro(id int64, family string) error
}

// Credentials resolves a host's SSH password. Resolution happens lazily,
// once per connection attempt; the runner never caches the result.
// *vault.Keyring satisfies it.
type Credentials interface {
	Password(hostID int64) (password string, ok bool, err error)
}

// Session is one live authenticated connection.
type Session interface {
	pkgmgr.Runner
	Close() error
}

// Dialer opens sessions per host record.
type Dialer interface {
	Dial(ctx context.Context, rec fleet.HostRecord, password string) (Session, error)
}

// SSHDialer adapts *sshexec.Dialer to the Dialer seam.
type SSHDialer struct {
	D *sshexec.Dialer
}

func (s SSHDialer) Dial(ctx context.Context, rec fleet.HostRecord, password string) (Session, error) {
	c, err := s.D.Dial(ctx, rec, password)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Sink mirrors batch events to an external audit stream.
type Sink interface {
	Publish(ctx context.Context, ev fleet.Event) error
}

// Runner executes batches.
type Runner struct {
	registry Registry
	creds    Credentials
	dialer   Dialer
	sink     Sink
	lg       lg.Logger
	now      func() time.Time
}

type Option func(*Runner)

// WithSink mirrors every event to sink, best-effort.
func WithSink(s Sink) Option { return func(r *Runner) { r.sink = s } }

func WithLogger(l lg.Logger) Option { return func(r *Runner) { r.lg = l } }

func New(reg Registry, creds Credentials, dialer Dialer, opts ...Option) *Runner {
	r := &Runner{
		registry: reg,
		creds:    creds,
		dialer:   dialer,
		lg:       lg.Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts a batch applying op to hostIDs and returns the job id plus
// the event stream. Hosts are processed in the order the ids were given;
// an id with no record still gets its one terminal error result, so every
// input id is accounted for. The channel closes after the last id's
// result event; that close is the all-done signal. Run fails outright
// only when the host records cannot be loaded at all.
func (r *Runner) Run(ctx context.Context, op fleet.Operation, hostIDs []int64) (string, <-chan fleet.Event, error) {
	hosts, err := r.registry.GetHosts(hostIDs)
	if err != nil {
		return "", nil, fmt.Errorf("load hosts: %w", err)
	}
	byID := make(map[int64]fleet.HostRecord, len(hosts))
	for _, h := range hosts {
		byID[h.ID] = h
	}

	jobID := uuid.NewString()
	events := make(chan fleet.Event, 16)

	go func() {
		defer close(events)
		log := r.lg.With(lg.String("job_id", jobID), lg.String("op", string(op)))

		// Sink publishing runs beside the batch loop so broker latency
		// never stalls host execution. Failures are logged, never
		// surfaced: the audit stream must not be able to fail a batch.
		var (
			mirror chan fleet.Event
			g      errgroup.Group
		)
		if r.sink != nil {
			mirror = make(chan fleet.Event, 64)
			g.Go(func() error {
				for ev := range mirror {
					if err := r.sink.Publish(ctx, ev); err != nil {
						log.Warn("event publish failed", lg.Int64("host_id", ev.HostID), lg.Err(err))
					}
				}
				return nil
			})
			// flush the mirror before events closes, so consumers that
			// treat the close as all-done see a complete audit trail
			defer func() {
				close(mirror)
				g.Wait()
			}()
		}
		emit := func(ev fleet.Event) {
			events <- ev
			if mirror != nil {
				mirror <- ev
			}
		}

		log.Info("batch started", lg.Int("hosts", len(hostIDs)))
		for _, id := range hostIDs {
			var res fleet.OperationResult
			if h, ok := byID[id]; ok {
				res = r.runHost(ctx, log, jobID, op, h, emit)
			} else {
				res = fleet.OperationResult{
					HostID: id,
					Name:   fleet.HostRecord{ID: id}.DisplayName(),
					Status: fleet.StatusError,
					Note:   "host not found",
				}
			}
			emit(fleet.Event{
				Type:   fleet.EventResult,
				JobID:  jobID,
				HostID: id,
				Result: &res,
			})
			log.Info("host finished",
				lg.Int64("host_id", id),
				lg.String("status", string(res.Status)),
				lg.String("note", res.Note))
		}
		log.Info("batch finished")
	}()

	return jobID, events, nil
}

// runHost applies op to one host and returns its terminal result. Line
// events for streaming operations are emitted along the way; the caller
// emits the result, so exactly one is produced per host no matter how
// this returns.
func (r *Runner) runHost(ctx context.Context, log lg.Logger, jobID string, op fleet.Operation, h fleet.HostRecord, emit func(fleet.Event)) fleet.OperationResult {
	res := fleet.OperationResult{HostID: h.ID, Name: h.DisplayName(), Status: fleet.StatusError}

	if _, _, err := h.Endpoint(); err != nil {
		res.Note = err.Error()
		return res
	}

	var password string
	if h.AuthMethod == fleet.AuthPassword {
		pw, ok, err := r.creds.Password(h.ID)
		if err != nil {
			res.Note = fmt.Sprintf("credentials: %v", err)
			return res
		}
		if ok {
			password = pw
		}
	}

	// A dial failure is an error even for reboot: a host we never
	// reached cannot have rebooted. Drop-as-success applies only to
	// connections severed after the trigger command was sent.
	sess, err := r.dialer.Dial(ctx, h, password)
	if err != nil {
		res.Note = fmt.Sprintf("SSH: %v", err)
		return res
	}
	defer sess.Close()

	if op == fleet.OpReboot {
		return r.reboot(ctx, sess, res)
	}

	fam := distro.Detect(ctx, sess)
	res.Distro = string(fam)
	mgr, err := pkgmgr.ForFamily(fam)
	if err != nil {
		res.Note = err.Error()
		return res
	}

	switch op {
	case fleet.OpCheck:
		count, note, err := mgr.Check(ctx, sess)
		if err != nil {
			res.Note = err.Error()
			return res
		}
		res.Status = fleet.StatusOK
		res.Count = count
		res.Note = note
		r.writeBack(log, h.ID, fam, count)

	case fleet.OpSimulate, fleet.OpAutoremoveSim:
		var p pkgmgr.Preview
		if op == fleet.OpSimulate {
			p, err = mgr.Simulate(ctx, sess)
		} else {
			p, err = mgr.AutoremovePreview(ctx, sess)
		}
		if err != nil {
			res.Note = err.Error()
			return res
		}
		res.Status = fleet.StatusOK
		res.Count = p.Count
		res.Detail = p.Detail
		res.Note = p.Note

	case fleet.OpUpgrade, fleet.OpAutoremove:
		var lines <-chan string
		var exit <-chan int
		if op == fleet.OpUpgrade {
			lines, exit, err = mgr.Upgrade(ctx, sess)
		} else {
			lines, exit, err = mgr.Autoremove(ctx, sess)
		}
		if err != nil {
			res.Note = err.Error()
			return res
		}
		for line := range lines {
			emit(fleet.Event{
				Type:   fleet.EventLine,
				JobID:  jobID,
				HostID: h.ID,
				Line:   line,
			})
		}
		rc := <-exit
		res.Note = fmt.Sprintf("rc=%d", rc)
		if rc == 0 {
			res.Status = fleet.StatusOK
		}

	default:
		res.Note = fmt.Sprintf("unknown operation %q", op)
	}

	return res
}

// writeBack persists the check outcome. The registry write is advisory:
// a failure is logged and the batch keeps its result.
func (r *Runner) writeBack(log lg.Logger, hostID int64, fam distro.Family, count int) {
	c := count
	if err := r.registry.RecordCheckResult(hostID, r.now(), &c); err != nil {
		log.Warn("check write-back failed", lg.Int64("host_id", hostID), lg.Err(err))
	}
	if err := r.registry.RecordDistro(hostID, string(fam)); err != nil {
		log.Warn("distro write-back failed", lg.Int64("host_id", hostID), lg.Err(err))
	}
}
