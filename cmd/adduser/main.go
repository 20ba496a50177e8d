// Command adduser creates a receipt-tracker account from the command line and
// can prune expired sessions.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/ayush/receipt-tracker/backend/internal/auth"
	"github.com/ayush/receipt-tracker/backend/internal/store"
)

const minPasswordLength = 6

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	prune := fs.Bool("prune", false, "Delete expired sessions instead of creating a user")
	dbURL := fs.String("db", os.Getenv("DATABASE_URL"), "Postgres URL (defaults to $DATABASE_URL)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*prune && (strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "") {
		fmt.Fprintln(stdout, "Usage: adduser -name <name> -email <email> [-password <password>] [-db <url>]")
		fmt.Fprintln(stdout, "       adduser -prune [-db <url>]")
		fs.PrintDefaults()
		return errors.New("missing required flags: name, email")
	}

	var password string
	if !*prune {
		password = *passwordFlag
		if password == "" {
			fmt.Fprint(stdout, "Password: ")
			var err error
			password, err = readPassword(stdin)
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			fmt.Fprintln(stdout)
		}
		if len(password) < minPasswordLength {
			return fmt.Errorf("password must be at least %d characters", minPasswordLength)
		}
	}

	if *dbURL == "" {
		return errors.New("database URL missing: set DATABASE_URL or pass -db")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.Migrate(*dbURL); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	pool, err := store.Connect(ctx, *dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer pool.Close()

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := auth.NewService(store.NewPostgresStore(pool), logger)

	if *prune {
		return pruneSessions(ctx, svc, stdout)
	}
	return addUser(ctx, svc, *name, *email, password, stdout)
}

func addUser(ctx context.Context, svc *auth.Service, name, email, password string, stdout io.Writer) error {
	user, err := svc.CreateUser(ctx, name, email, password)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s already exists", auth.NormalizeEmail(email))
	}
	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Email, user.ID)
	return nil
}

func pruneSessions(ctx context.Context, svc *auth.Service, stdout io.Writer) error {
	n, err := svc.PruneSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}
	fmt.Fprintf(stdout, "Deleted %d expired sessions\n", n)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
