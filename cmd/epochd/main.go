package main

import (
	"log"

	"trancheclear/services/settlement"
)

func main() {
	if err := settlement.Main(); err != nil {
		log.Fatalf("epochd: %v", err)
	}
}
