package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/forgo/canvas/pkg/jwt"
)

func main() {
	// Flags for customization
	privateKeyPath := flag.String("key", "./keys/private.pem", "Path to JWT private key")
	userID := flag.String("user", "admin-dev-user", "User ID for the token")
	wallet := flag.String("wallet", "0.0.2", "Wallet account id for the token")
	role := flag.String("role", "admin", "Role claim: buyer, artist or admin")
	issuer := flag.String("issuer", "canvas.forgo.software", "JWT issuer")
	ttl := flag.Duration("ttl", 7*24*time.Hour, "Token lifetime")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Create JWT service with just the private key
	jwtService, err := jwt.NewService(jwt.Config{
		PrivateKeyPath: *privateKeyPath,
		Issuer:         *issuer,
		Expiration:     *ttl,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating JWT service: %v\n", err)
		fmt.Fprintf(os.Stderr, "\nMake sure you have generated keys with: make keys-generate\n")
		os.Exit(1)
	}

	claims := jwt.Claims{
		UserID:        *userID,
		WalletAddress: *wallet,
		Role:          *role,
	}

	// Sign token
	token, err := jwtService.Sign(claims)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing token: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON {
		output := map[string]any{
			"token":      token,
			"token_type": "Bearer",
			"expires_in": int(ttl.Seconds()),
			"user_id":    *userID,
			"wallet":     *wallet,
			"role":       *role,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(output)
		return
	}

	fmt.Println("Session Token Generated")
	fmt.Println("=======================")
	fmt.Printf("User ID:  %s\n", *userID)
	fmt.Printf("Wallet:   %s\n", *wallet)
	fmt.Printf("Role:     %s\n", *role)
	fmt.Printf("Expires:  %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H 'Authorization: Bearer %s' http://localhost:8080/v1/auth/me\n", token[:min(50, len(token))]+"...")
}
