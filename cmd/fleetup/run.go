package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andrej220/fleetup/internal/events"
	"github.com/andrej220/fleetup/internal/fleet"
	"github.com/andrej220/fleetup/internal/lg"
	"github.com/andrej220/fleetup/internal/orchestrator"
	"github.com/andrej220/fleetup/internal/persistence"
	"github.com/andrej220/fleetup/internal/registry"
	"github.com/andrej220/fleetup/internal/sshexec"
	"github.com/andrej220/fleetup/internal/vault"
	"github.com/andrej220/fleetup/pkg/config"
)

func cmdRun(ctx context.Context, cfg config.AppConfig, logger lg.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	opFlag := fs.String("op", "check", "operation: check, simulate, upgrade, autoremove, autoremove-sim, reboot")
	hostsFlag := fs.String("hosts", "", "comma-separated host ids (default: all registered hosts)")
	reportFlag := fs.String("report", "", "write a JSON batch report to this file")
	insecure := fs.Bool("insecure-host-keys", false, "accept any remote host key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	op, err := fleet.ParseOperation(*opFlag)
	if err != nil {
		return err
	}

	store, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ids, hosts, err := resolveHosts(store, *hostsFlag)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no hosts selected")
	}

	var sess *vault.Session
	if needsVault(hosts) {
		passphrase, err := readPassphrase()
		if err != nil {
			return err
		}
		sess, err = vault.Unlock(cfg.DataDir, passphrase)
		if err != nil {
			return err
		}
	}
	keyring := vault.NewKeyring(store, sess)

	execCfg := cfg.SSHExecConfig()
	if *insecure {
		execCfg.HostKeyPolicy = sshexec.PolicyInsecure
	}
	dialer := orchestrator.SSHDialer{D: sshexec.NewDialer(execCfg)}

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if cfg.Kafka.Enabled {
		pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer pub.Close()
		opts = append(opts, orchestrator.WithSink(pub))
	}
	runner := orchestrator.New(store, keyring, dialer, opts...)

	started := time.Now()
	jobID, evs, err := runner.Run(ctx, op, ids)
	if err != nil {
		return err
	}

	var results []fleet.OperationResult
	for ev := range evs {
		switch ev.Type {
		case fleet.EventLine:
			fmt.Printf("    %s\n", ev.Line)
		case fleet.EventResult:
			results = append(results, *ev.Result)
			printResult(*ev.Result)
		}
	}

	rep := persistence.Report{
		JobID:      jobID,
		Operation:  op,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Results:    results,
	}
	ok, failed := rep.Summary()
	fmt.Printf("\n%d ok, %d failed (job %s)\n", ok, failed, jobID)

	if *reportFlag != "" {
		path := *reportFlag
		if !filepath.IsAbs(path) && cfg.ReportDir != "" && filepath.Dir(path) == "." {
			path = filepath.Join(cfg.ReportDir, path)
		}
		if err := persistence.WriteReport(rep, path, nil, nil); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", path)
	}
	return nil
}

func printResult(res fleet.OperationResult) {
	mark := "ok"
	if res.Status != fleet.StatusOK {
		mark = "FAIL"
	}
	line := fmt.Sprintf("[%s] %s", mark, res.Name)
	if res.Distro != "" {
		line += " (" + res.Distro + ")"
	}
	if res.Status == fleet.StatusOK && res.Count > 0 {
		line += fmt.Sprintf(" updates=%d", res.Count)
	}
	if res.Note != "" {
		line += " " + res.Note
	}
	fmt.Println(line)
}

// resolveHosts expands the -hosts selector. Empty means every registered
// host, in listing order.
func resolveHosts(store *registry.Store, selector string) ([]int64, []fleet.HostRecord, error) {
	if selector == "" {
		hosts, err := store.ListHosts()
		if err != nil {
			return nil, nil, err
		}
		ids := make([]int64, 0, len(hosts))
		for _, h := range hosts {
			ids = append(ids, h.ID)
		}
		return ids, hosts, nil
	}

	var ids []int64
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad host id %q", part)
		}
		ids = append(ids, id)
	}
	hosts, err := store.GetHosts(ids)
	if err != nil {
		return nil, nil, err
	}
	return ids, hosts, nil
}

func needsVault(hosts []fleet.HostRecord) bool {
	for _, h := range hosts {
		if h.AuthMethod == fleet.AuthPassword {
			return true
		}
	}
	return false
}

// readPassphrase takes the vault passphrase from the environment, or
// prompts on stdin when unset.
func readPassphrase() (string, error) {
	if p := os.Getenv(EnvPassphrase); p != "" {
		return p, nil
	}
	fmt.Fprint(os.Stderr, "vault passphrase: ")
	return readLine()
}

func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
