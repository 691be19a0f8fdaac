package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andrej220/fleetup/internal/fleet"
	"github.com/andrej220/fleetup/internal/registry"
	"github.com/andrej220/fleetup/internal/vault"
	"github.com/andrej220/fleetup/pkg/config"
)

func openRegistry(cfg config.AppConfig) (*registry.Store, error) {
	return registry.Open(cfg.RegistryPath)
}

func cmdHosts(cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("hosts", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	hosts, err := store.ListHosts()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDR\tUSER\tAUTH\tDISTRO\tPENDING\tLAST CHECK")
	for _, h := range hosts {
		pending := "-"
		if h.PendingUpdates != nil {
			pending = fmt.Sprintf("%d", *h.PendingUpdates)
		}
		lastCheck := "-"
		if h.LastCheck != nil {
			lastCheck = h.LastCheck.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			h.ID, h.Name, h.Addr, h.User, h.AuthMethod, h.Distro, pending, lastCheck)
	}
	return w.Flush()
}

func cmdHostAdd(cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("host-add", flag.ExitOnError)
	name := fs.String("name", "", "host name (unique, required)")
	addr := fs.String("addr", "", "host address")
	port := fs.Int("port", 22, "SSH port")
	user := fs.String("user", "root", "SSH user")
	auth := fs.String("auth", "key", "auth method: key or password")
	keyPath := fs.String("key", "", "private key path (key auth)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	h := fleet.HostRecord{
		Name:       *name,
		Addr:       *addr,
		Port:       *port,
		User:       *user,
		AuthMethod: fleet.AuthMethod(*auth),
		KeyPath:    *keyPath,
	}
	if err := store.SaveHost(&h); err != nil {
		return err
	}
	fmt.Printf("saved host %s (id %d)\n", h.Name, h.ID)
	return nil
}

func cmdHostRemove(cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("host-rm", flag.ExitOnError)
	id := fs.Int64("id", 0, "host id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("-id is required")
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteHost(*id); err != nil {
		return err
	}
	fmt.Printf("removed host %d\n", *id)
	return nil
}

// cmdSetPassword encrypts an SSH password under the vault key and stores
// the ciphertext beside the host record.
func cmdSetPassword(cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("set-password", flag.ExitOnError)
	id := fs.Int64("id", 0, "host id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("-id is required")
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.GetHost(*id); err != nil {
		return err
	}

	passphrase, err := readPassphrase()
	if err != nil {
		return err
	}
	sess, err := vault.Unlock(cfg.DataDir, passphrase)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stderr, "host password: ")
	password, err := readLine()
	if err != nil {
		return err
	}
	enc, err := sess.Encrypt(password)
	if err != nil {
		return err
	}
	if err := store.SetHostPassword(*id, enc); err != nil {
		return err
	}
	fmt.Printf("password stored for host %d\n", *id)
	return nil
}
