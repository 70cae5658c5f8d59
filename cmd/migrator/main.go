package main

import (
	"log"
	"os"

	"github.com/go-faster/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	//nolint:errcheck
	godotenv.Load()

	app := &cli.App{
		Name:  "migrator",
		Usage: "apply database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "storage", Usage: "database url", EnvVars: []string{"POSTGRES_DSN"}, Required: true},
			&cli.StringFlag{Name: "migrations", Usage: "path to migrations", Value: "./migrations"},
		},
		Commands: []*cli.Command{
			commandUp(),
			commandDown(),
			commandVersion(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newMigrate(c *cli.Context) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+c.String("migrations"), c.String("storage"))
	if err != nil {
		return nil, errors.Wrap(err, "migrate.New failed: ")
	}
	return m, nil
}

func commandUp() *cli.Command {
	return &cli.Command{
		Name:  "up",
		Usage: "apply all pending migrations",
		Action: func(c *cli.Context) error {
			m, err := newMigrate(c)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return errors.Wrap(err, "m.Up failed: ")
			}
			return nil
		},
	}
}

func commandDown() *cli.Command {
	return &cli.Command{
		Name:  "down",
		Usage: "roll back migrations",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "steps", Usage: "number of migrations to roll back", Value: 1},
		},
		Action: func(c *cli.Context) error {
			m, err := newMigrate(c)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Steps(-c.Int("steps")); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return errors.Wrap(err, "m.Steps failed: ")
			}
			return nil
		},
	}
}

func commandVersion() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print the current schema version",
		Action: func(c *cli.Context) error {
			m, err := newMigrate(c)
			if err != nil {
				return err
			}
			defer m.Close()
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Println("no migrations applied")
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "m.Version failed: ")
			}
			log.Printf("version %d, dirty %t", version, dirty)
			return nil
		},
	}
}
