// Command devtoken prints an HS256 identity token for local testing of the
// booking API.  It reads JWT_SECRET, JWT_ISSUER and JWT_AUDIENCE from the
// environment (or .env) so the token matches the server's settings.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/cinema-ticket-checkout/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "", "user id placed in the sub claim")
	role := flag.String("role", "", "optional role claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if *sub == "" {
		log.Fatal("-sub is required")
	}

	tok, err := utils.NewAccessToken(secret, *sub, *ttl, utils.TokenOptions{
		Issuer:   os.Getenv("JWT_ISSUER"),
		Audience: os.Getenv("JWT_AUDIENCE"),
		Role:     *role,
	})
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(tok.Token)
}
