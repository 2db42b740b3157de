package main

import (
	"os"

	"github.com/taskmaster/scheduler/cmd/api/commands"
)

// @title Scheduler API
// @version 1.0
// @description Persistence endpoint for the scheduler's tasks and events

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Required only when AUTH_SECRET is set. Type "Bearer" followed by a space and the token.

func main() {
	os.Exit(commands.Execute())
}
