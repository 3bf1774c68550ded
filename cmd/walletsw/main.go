// Command walletsw runs the wallet card offline cache router as a caching
// reverse proxy in front of the PWA origin.
package main

import "github.com/Sternrassler/wallet-sw/cmd/walletsw/cmd"

func main() {
	cmd.Execute()
}
