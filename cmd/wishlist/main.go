// Command wishlist is the shared wishlist client.
//
// Configuration comes from the environment (see internal/config), optionally
// seeded from a .env file in the working directory; flags override both.
package main

import (
	"os"

	"github.com/sakif/wishlist/internal/cli"
)

func main() {
	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
