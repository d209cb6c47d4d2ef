package main

import (
	"github.com/elbiat/evald/cmd"
	"github.com/elbiat/evald/pkg/env"
	"github.com/elbiat/evald/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("evald failure", "error", err)
	}
}
