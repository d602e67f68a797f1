package main

// version is stamped by the build (-ldflags "-X main.version=...").
var version = "0.1.0-dev"

func main() {
	Execute()
}
