package main

import (
	"log"

	"github.com/slack-gardener/gardener/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
