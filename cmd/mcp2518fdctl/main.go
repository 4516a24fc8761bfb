// Command mcp2518fdctl pokes at an MCP2518FD from the shell: reset it,
// dump its registers, check the SPI link, send and monitor frames.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
