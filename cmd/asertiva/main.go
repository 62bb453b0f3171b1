package main

import (
	"os"

	"github.com/javiportal/asertiva-monitoring/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
