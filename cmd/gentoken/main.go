// Test program to generate JWT tokens for local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eventhub-live/server/internal/auth"
)

func main() {
	subject := flag.String("sub", "test-user", "user id to put in the token subject")
	role := flag.String("role", "user", "role claim (user or admin)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "Error: JWT_SECRET is required")
		os.Exit(1)
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "eventhub"
	}

	manager := auth.NewJWTManager(secret, *ttl, issuer)
	token, err := manager.Generate(*subject, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("JWT Token:")
	fmt.Println(token)
	fmt.Println("\nTest with:")
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/notifications\n", token)
}
