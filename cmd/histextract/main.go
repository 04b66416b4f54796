package main

import (
	"os"

	"github.com/vjranagit/histextract/internal/app"
)

func main() {
	os.Exit(app.Extract(os.Args[1:], os.Stdout, os.Stderr))
}
