package main

import (
	"github.com/joho/godotenv"

	"github.com/okapi-bot/okapi/cmd"
)

func main() {
	// Missing .env is fine; real env vars always win
	godotenv.Load()
	cmd.Execute()
}
