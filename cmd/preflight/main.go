// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if !preflight(os.Getenv, os.Stdout, os.Stderr) {
		os.Exit(1)
	}
}

// preflight validates the environment the API will start with. It returns
// false when a required setting is missing.
func preflight(getenv func(string) string, out, errOut io.Writer) bool {
	passed := true
	fail := func(msg string) {
		fmt.Fprintln(errOut, "✖", msg)
		passed = false
	}
	warn := func(msg string) { fmt.Fprintln(errOut, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(out, "✔", msg) }
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	resyKey := get("RESY_API_KEY")
	admin := get("ADMIN_API_KEYS")
	pub := get("PUBLIC_API_KEYS")
	apiAddr := get("API_ADDR")
	discord := get("DISCORD_WEBHOOK_URL")
	slack := get("SLACK_WEBHOOK_URL")
	allowed := get("ALLOWED_ORIGINS")

	if resyKey == "" {
		fail("RESY_API_KEY is empty (every Resy call will be rejected).")
	} else {
		ok("RESY_API_KEY present")
	}
	if admin == "" {
		warn("ADMIN_API_KEYS is empty; admin routes are open to anyone who can reach the API.")
	}
	if pub == "" && admin != "" {
		warn("PUBLIC_API_KEYS is empty; only admin keys can read monitors.")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "PUBLIC_API_KEYS": pub} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if apiAddr == "" {
		warn("API_ADDR is empty; 127.0.0.1:8080 will be used.")
	} else {
		ok("API_ADDR=" + apiAddr)
	}

	switch {
	case discord == "" && slack == "":
		warn("no DISCORD_WEBHOOK_URL or SLACK_WEBHOOK_URL; matches will only show in the API.")
	case discord != "" && !strings.HasPrefix(discord, "https://"):
		fail("DISCORD_WEBHOOK_URL must be an https URL.")
	default:
		ok("notification webhook configured")
	}

	if allowed == "" {
		warn("ALLOWED_ORIGINS empty; any origin may call the API from a browser.")
	} else {
		ok("ALLOWED_ORIGINS=" + allowed)
	}

	if passed {
		ok("preflight passed")
	}
	return passed
}
