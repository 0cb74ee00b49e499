// hashpass generates the bcrypt hash for the dashboard admin password,
// for use as AUTH_ADMIN_PASS_HASH.
package main

import (
	"fmt"
	"os"

	"okx-trading-bot/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hashpass <password>")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
