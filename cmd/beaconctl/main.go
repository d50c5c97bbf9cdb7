// beaconctl is the beacon admin CLI: user bootstrap and app inspection
// against the control store, without going through the HTTP boundary.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/mstefan99/beacon/config"
	"github.com/mstefan99/beacon/internal/auth"
	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/logging"
	"github.com/mstefan99/beacon/internal/store"
)

const usage = `Usage: beaconctl [-config path] <command> [args]

Commands:
  adduser <username>   create a user (prompts for a password)
  passwd <username>    change a user's password (prompts for a password)
  apps                 list all apps
  purge-sessions       remove expired login sessions
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	logging.Init(slog.LevelWarn, false)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fatalf("load config: %v", err)
		}
		cfg = config.Default()
	}

	controlStore, err := store.Open(store.Config{Path: cfg.ControlDBPath()})
	if err != nil {
		fatalf("open control store: %v", err)
	}
	defer controlStore.Close()

	switch cmd := flag.Arg(0); cmd {
	case "adduser":
		cmdAddUser(controlStore, flag.Arg(1))
	case "passwd":
		cmdPasswd(controlStore, flag.Arg(1))
	case "apps":
		cmdApps(controlStore)
	case "purge-sessions":
		cmdPurgeSessions(controlStore, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

func cmdAddUser(s *store.Store, username string) {
	if username == "" {
		fatalf("adduser: username required")
	}

	if _, err := s.GetUserByUsername(username); err == nil {
		fatalf("user %q already exists", username)
	} else if !errors.IsNotFound(err) {
		fatalf("check user: %v", err)
	}

	password := promptPassword()

	hash, err := auth.HashPassword(password)
	if err != nil {
		fatalf("hash password: %v", err)
	}

	user, err := s.CreateUser(username, hash)
	if err != nil {
		fatalf("create user: %v", err)
	}

	fmt.Printf("user %q created (id %d)\n", user.Username, user.ID)
}

func cmdPasswd(s *store.Store, username string) {
	if username == "" {
		fatalf("passwd: username required")
	}

	user, err := s.GetUserByUsername(username)
	if err != nil {
		fatalf("find user: %v", err)
	}

	password := promptPassword()

	hash, err := auth.HashPassword(password)
	if err != nil {
		fatalf("hash password: %v", err)
	}

	if err := s.UpdateUserPassword(user.ID, hash); err != nil {
		fatalf("update password: %v", err)
	}

	fmt.Printf("password updated for %q\n", user.Username)
}

func cmdApps(s *store.Store) {
	apps, err := s.ListApps()
	if err != nil {
		fatalf("list apps: %v", err)
	}

	if len(apps) == 0 {
		fmt.Println("no apps")
		return
	}

	fmt.Printf("%-6s %-24s %-8s %s\n", "ID", "NAME", "OWNER", "DESCRIPTION")
	for _, app := range apps {
		fmt.Printf("%-6d %-24s %-8d %s\n", app.ID, app.Name, app.OwnerID, app.Description)
	}
}

func cmdPurgeSessions(s *store.Store, cfg *config.Config) {
	svc := auth.NewService(s, cfg.Auth.SessionTTL.Duration())

	n, err := svc.PurgeExpired()
	if err != nil {
		fatalf("purge sessions: %v", err)
	}

	fmt.Printf("%d expired sessions removed\n", n)
}

// promptPassword reads a password twice without echo and verifies the
// entries match.
func promptPassword() string {
	fmt.Print("Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatalf("read password: %v", err)
	}

	fmt.Print("Repeat password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatalf("read password: %v", err)
	}

	if string(first) != string(second) {
		fatalf("passwords do not match")
	}
	if len(first) == 0 {
		fatalf("password must not be empty")
	}

	return string(first)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
