package main

import "github.com/edgeflare/catalogd/cmd/catalogd"

func main() {
	catalogd.Main()
}
