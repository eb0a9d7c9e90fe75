package main

import (
	"os"

	cipherscan "github.com/adedayo/cipherscan/pkg"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := cipherscan.ConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if err := cipherscan.Service(configPath); err != nil {
		log.Fatal(err)
	}
}
