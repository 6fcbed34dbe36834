package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"gorm.io/gorm"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/app/repository"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/database"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	// Only the database settings are needed, so the full config is not validated
	dbCfg := config.DatabaseConfig{
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", "3306"),
		Name:     env.GetEnv("DB_NAME", ""),
	}
	db, err := database.Open(dbCfg.DSN(), false)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	if err := run(repository.NewUserRepository(db), os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// run executes one user command against repo and writes the result to out.
func run(repo repository.UserRepository, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errors.New("missing command")
	}

	switch args[0] {
	case "create":
		if len(args) != 3 {
			return errors.New("usage: usertool create <name> <email>")
		}
		user, err := models.CreateUser(args[1], args[2])
		if err != nil {
			return fmt.Errorf("invalid user: %w", err)
		}
		if existing, err := repo.GetByEmail(user.Email); err == nil {
			return fmt.Errorf("user %s already exists with id %d", existing.Email, existing.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := repo.Create(user); err != nil {
			return fmt.Errorf("could not create user: %w", err)
		}
		fmt.Fprintf(out, "Created user %d <%s>\n", user.ID, user.Email)

	case "show":
		if len(args) != 2 {
			return errors.New("usage: usertool show <email>")
		}
		user, err := repo.GetByEmail(args[1])
		if err != nil {
			return fmt.Errorf("could not find user %s: %w", args[1], err)
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", user.ID, user.Name, user.Email, user.Status)

	case "delete":
		// Deleting a user removes its usage profile, purchases and
		// subscriptions as well.
		if len(args) != 2 {
			return errors.New("usage: usertool delete <id>")
		}
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid user id %q", args[1])
		}
		user, err := repo.GetByID(uint(id))
		if err != nil {
			return fmt.Errorf("could not find user %d: %w", id, err)
		}
		if err := repo.Delete(user.ID); err != nil {
			return fmt.Errorf("could not delete user %d: %w", id, err)
		}
		fmt.Fprintf(out, "Deleted user %d <%s> with its usage, purchases and subscriptions\n", user.ID, user.Email)

	case "count":
		n, err := repo.Count()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d users\n", n)

	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: usertool <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  create <name> <email>   Create a user")
	fmt.Fprintln(w, "  show <email>            Show a user")
	fmt.Fprintln(w, "  delete <id>             Delete a user and everything it owns")
	fmt.Fprintln(w, "  count                   Count users")
}
