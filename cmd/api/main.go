package main

import (
	"os"

	_ "github.com/novacrm/auth-service/gen/docs/swagger"
)

// @title NOVA CRM Auth API
// @version 1.0
// @description Registration with e-mail codes, password and Google sign-in, JWT issuance and the staff user directory.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
