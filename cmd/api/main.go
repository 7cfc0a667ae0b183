package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"kompli.org/internal/auth"
	"kompli.org/internal/httpapi"
	"kompli.org/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("KOMPLI_COMMIT"))

	ctx := context.Background()

	var db *sql.DB
	var store auth.Store
	if dsn := os.Getenv("KOMPLI_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		log.Print("KOMPLI_PG_DSN not set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	keys, err := parseSigningKeys(os.Getenv("KOMPLI_AUTH_KEYS"))
	if err != nil {
		log.Fatalf("parse signing keys: %v", err)
	}

	opts := []auth.IssuerOption{}
	if v := os.Getenv("KOMPLI_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("parse KOMPLI_ACCESS_TTL: %v", err)
		}
		opts = append(opts, auth.WithAccessTTL(d))
	}
	if v := os.Getenv("KOMPLI_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("parse KOMPLI_REFRESH_TTL: %v", err)
		}
		opts = append(opts, auth.WithRefreshTTL(d))
	}
	if v := os.Getenv("KOMPLI_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("parse KOMPLI_CLOCK_SKEW: %v", err)
		}
		opts = append(opts, auth.WithLeeway(d))
	}

	issuer, err := auth.NewIssuer(keys, store.Revocations(ctx), opts...)
	if err != nil {
		log.Fatalf("init issuer: %v", err)
	}
	svc, err := auth.NewService(store, issuer)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}
	if err := svc.EnsureBuiltins(ctx); err != nil {
		log.Fatalf("seed permission catalog: %v", err)
	}
	if err := bootstrapSuperuser(ctx, svc); err != nil {
		log.Fatalf("bootstrap superuser: %v", err)
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version)
	handler := httpapi.RequestID(
		httpapi.LoggingJSON(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), 50, 25),
						1<<20,
					),
				),
			),
		),
	)

	addr := os.Getenv("KOMPLI_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting kompli-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// parseSigningKeys reads "kid:secret,kid2:secret2". The first key signs new
// tokens; the rest only verify, which is how a rotation rolls out.
func parseSigningKeys(raw string) ([]auth.SigningKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("KOMPLI_AUTH_KEYS is required (format: kid:secret[,kid:secret...])")
	}
	var keys []auth.SigningKey
	for _, part := range strings.Split(raw, ",") {
		kid, secret, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("malformed key entry %q", part)
		}
		keys = append(keys, auth.SigningKey{ID: kid, Secret: []byte(secret)})
	}
	return keys, nil
}

// bootstrapSuperuser creates the first organization and administrator from
// the environment on an empty installation. Reruns are no-ops: an existing
// email short-circuits on the conflict.
func bootstrapSuperuser(ctx context.Context, svc *auth.Service) error {
	email := strings.TrimSpace(os.Getenv("KOMPLI_SUPERUSER_EMAIL"))
	password := os.Getenv("KOMPLI_SUPERUSER_PASSWORD")
	if email == "" || password == "" {
		return nil
	}
	orgName := os.Getenv("KOMPLI_SUPERUSER_ORG")
	if orgName == "" {
		orgName = "Kompli"
	}

	org, err := svc.CreateOrganization(ctx, orgName)
	if err != nil {
		if !errors.Is(err, auth.ErrConflict) {
			return err
		}
		org, err = findOrganizationByName(ctx, svc, orgName)
		if err != nil {
			return err
		}
	}

	user, err := svc.CreateUser(ctx, org.ID, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrConflict) {
			return nil
		}
		return err
	}

	role, err := svc.CreateRole(ctx, "", "platform-admin", "Platform administration", false)
	if err != nil {
		if !errors.Is(err, auth.ErrConflict) {
			return err
		}
		role, err = findGlobalRoleByName(ctx, svc, org.ID, "platform-admin")
		if err != nil {
			return err
		}
	} else {
		perms := []string{auth.PermissionAll, auth.PermissionCrossTenant}
		if err := svc.SetRolePermissions(ctx, role.ID, perms); err != nil {
			return err
		}
	}

	if _, err := svc.AssignRole(ctx, user.ID, role.ID); err != nil {
		return err
	}
	log.Printf("bootstrapped superuser %s in organization %s", email, org.Name)
	return nil
}

func findOrganizationByName(ctx context.Context, svc *auth.Service, name string) (*auth.Organization, error) {
	orgs, err := svc.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	for _, org := range orgs {
		if org.Name == name {
			return org, nil
		}
	}
	return nil, auth.ErrNotFound
}

func findGlobalRoleByName(ctx context.Context, svc *auth.Service, orgID, name string) (*auth.Role, error) {
	roles, err := svc.ListRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.Global() && role.Name == name {
			return role, nil
		}
	}
	return nil, auth.ErrNotFound
}
