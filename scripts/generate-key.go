// Package main is a development utility that prints fresh values for the
// platform's secrets: the token encryption key and the invitation signing
// secret, as environment variable assignments ready for a .env file.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/aragroup/ara-platform/internal/crypto"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}
	// Round-trip through the cipher so a bad key never gets printed.
	encoded := base64.StdEncoding.EncodeToString(key)
	if _, err := crypto.FromSecret(encoded); err != nil {
		log.Fatal(err)
	}

	signing := make([]byte, 48)
	if _, err := rand.Read(signing); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("ARA_ENCRYPTION_KEY=%s\n", encoded)
	fmt.Printf("ARA_AUTH_INVITATIONS_SIGNING_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(signing))
}
