package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"paygate/internal/auth"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	service := fs.String("service", "", "name of the calling service")
	scopes := fs.String("scopes", auth.ScopeCheckout, "comma separated scopes")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *service == "" {
		return fmt.Errorf("-service is required")
	}

	var list []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}

	token, err := auth.GenerateJWT(os.Getenv("JWT_SECRET"), *service, list, *ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
