package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/unfoldingWord/bt-servant-web-client/internal/auth"
)

func main() {
	user := flag.String("user", "", "user ID (required)")
	email := flag.String("email", "", "user email (required)")
	name := flag.String("name", "", "display name")
	expires := flag.String("expires", "30d", "expiry duration (e.g., 30d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *user == "" || *email == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -user and -email are required")
		os.Exit(1)
	}

	rawToken, err := auth.GenerateToken()
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	tokenHash := auth.HashToken(rawToken)

	dur, err := parseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}
	expiresAt := time.Now().Add(dur)

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "btservant")
		pass := envOrDefault("DB_PASSWORD", "btservant-dev")
		dbname := envOrDefault("DB_NAME", "btservant")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	var sessionID string
	err = conn.QueryRow(ctx, `
		INSERT INTO sessions (token_hash, user_id, email, name, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, tokenHash, *user, *email, nilIfEmpty(*name), expiresAt).Scan(&sessionID)
	if err != nil {
		log.Fatalf("failed to insert session: %v", err)
	}

	fmt.Println("=== Session Created ===")
	fmt.Println()
	fmt.Printf("  Session ID: %s\n", sessionID)
	fmt.Printf("  User:       %s\n", *user)
	fmt.Printf("  Email:      %s\n", *email)
	fmt.Printf("  Expires:    %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Session token (save this — it will NOT be shown again):")
	fmt.Printf("  %s\n", rawToken)
	fmt.Println()
	fmt.Println("=======================")
}

// parseDuration accepts Go duration syntax plus a "d" suffix for days.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
