package main

import (
	"log"

	"github.com/okabe/liveroom/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
