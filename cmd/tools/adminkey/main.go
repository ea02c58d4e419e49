package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/alexedwards/argon2id"
)

// Generates the argon2id hash expected in ADMIN_KEY_HASH for a given admin key.
func main() {
	key := flag.String("key", "", "admin key to hash")
	flag.Parse()

	if *key == "" {
		log.Fatal("usage: adminkey -key <admin key>")
	}

	hash, err := argon2id.CreateHash(*key, argon2id.DefaultParams)
	if err != nil {
		log.Fatalf("Failed to hash key: %v", err)
	}
	fmt.Println(hash)
}
