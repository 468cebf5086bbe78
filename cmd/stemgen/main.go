package main

import (
	"fmt"
	"os"

	"github.com/iabetor/stemgen/internal/logger"
)

func main() {
	defer logger.Sync()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stemgen: %v\n", err)
		os.Exit(1)
	}
}
