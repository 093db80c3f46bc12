package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

func main() {
	var (
		count    = flag.Int("count", 1, "number of tokens to generate")
		prefix   = flag.String("prefix", "editor", "subject, or subject prefix when count > 1")
		start    = flag.Int("start", 1, "starting index for generated subjects when count > 1")
		ttl      = flag.Duration("ttl", time.Hour, "token lifetime")
		audience = flag.String("aud", "", "audience claim")
		issuer   = flag.String("iss", "", "issuer claim")
		output   = flag.String("output", "", "file to write generated tokens as a JSON array")
	)
	flag.Parse()

	if *count < 1 {
		log.Fatal("count must be at least 1")
	}
	if *start < 1 {
		log.Fatal("start index must be at least 1")
	}
	if *ttl <= 0 {
		log.Fatal("ttl must be positive")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit subject cannot be provided when generating multiple tokens")
	}

	secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
	if secret == "" {
		log.Fatal("LOCAL_AUTH_SHARED_SECRET must be set")
	}

	opts := tokenOptions{Secret: []byte(secret), TTL: *ttl, Audience: *audience, Issuer: *issuer}
	tokens, err := generateTokens(opts, *count, *prefix, *start, args, time.Now())
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0])
}

func subjects(count int, prefix string, start int, args []string) []string {
	out := make([]string, count)
	for i := range out {
		switch {
		case len(args) > 0:
			out[i] = args[0]
		case count == 1:
			out[i] = prefix
		default:
			out[i] = fmt.Sprintf("%s-%d", prefix, start+i)
		}
	}
	return out
}

func generateTokens(opts tokenOptions, count int, prefix string, start int, args []string, now time.Time) ([]string, error) {
	subs := subjects(count, prefix, start, args)
	tokens := make([]string, len(subs))
	for i, sub := range subs {
		tok, err := signToken(opts, sub, now)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
