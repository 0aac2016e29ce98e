package main

import (
	"meteorgrid/internal/config"
	"meteorgrid/server"
)

func main() {
	config.LoadConfig()
	server.Init()
}
