package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"kompli.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("KOMPLI_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or KOMPLI_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner := migrate.NewRunner(db, *migrationsPath, *seedsPath)

	switch cmd := flag.Arg(0); cmd {
	case "up":
		applied, err := runner.Up(ctx)
		exitOn(cmd, err)
		report(applied, "database is up to date")
	case "down":
		name, err := runner.Down(ctx)
		exitOn(cmd, err)
		fmt.Println("rolled back", name)
	case "seed":
		applied, err := runner.Seed(ctx)
		exitOn(cmd, err)
		report(applied, "no pending seeds")
	case "status":
		entries, err := runner.Status(ctx)
		exitOn(cmd, err)
		for _, e := range entries {
			fmt.Printf("%s\t%s\n", e.Name, e.At.UTC().Format(time.RFC3339))
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
}

func exitOn(cmd string, err error) {
	if err != nil {
		log.Fatalf("migrate %s: %v", cmd, err)
	}
}

func report(applied []string, idleMsg string) {
	if len(applied) == 0 {
		fmt.Println(idleMsg)
		return
	}
	for _, name := range applied {
		fmt.Println("applied", name)
	}
}
