package main

import (
	"log"

	"github.com/soramiyu/picture-api/config"

	"github.com/soramiyu/picture-api/cmd"
)

func main() {
	log.Printf("picture-api %s (%s)", config.Version, config.CommitHash)
	cmd.Execute()
}
