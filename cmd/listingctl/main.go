package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"escrowswap/rpc"
)

const (
	defaultEndpoint = "http://127.0.0.1:8645"
	endpointEnv     = "LISTINGD_RPC"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:], os.Stdout)
	case "address":
		err = runAddress(os.Args[2:], os.Stdout)
	case "call":
		err = runCall(os.Args[2:], os.Stdout)
	case "submit":
		err = runSubmit(os.Args[2:], os.Stdout)
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: listingctl <command> [flags]

commands:
  keygen   -out <file>                         generate a signing key
  address  -key <file>                         print the address of a key
  call     -method <m> [-params <json>]        invoke a read-only method
  submit   -key <file> -method <m> -payload <json>
                                               sign and invoke a mutating method`)
}

func endpointFlag(fs *flag.FlagSet) *string {
	def := defaultEndpoint
	if v := strings.TrimSpace(os.Getenv(endpointEnv)); v != "" {
		def = v
	}
	return fs.String("rpc", def, "listingd endpoint")
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("out", "listing.key", "Output path for the hex encoded key")
	force := fs.Bool("force", false, "Overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("key file %s already exists (use --force to overwrite)", *path)
		}
	}
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	if err := ethcrypto.SaveECDSA(*path, key); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	fmt.Fprintln(out, ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	path := fs.String("key", "listing.key", "Path to the hex encoded key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := ethcrypto.LoadECDSA(*path)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	fmt.Fprintln(out, ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}

func runCall(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	endpoint := endpointFlag(fs)
	method := fs.String("method", "", "Method name, e.g. listing_get")
	params := fs.String("params", "", "Parameter object as JSON")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *method == "" {
		return fmt.Errorf("method is required")
	}
	var body interface{}
	if strings.TrimSpace(*params) != "" {
		raw := json.RawMessage(*params)
		if !json.Valid(raw) {
			return fmt.Errorf("params must be valid JSON")
		}
		body = raw
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	var result json.RawMessage
	if err := rpc.NewClient(*endpoint, nil).Call(ctx, *method, body, &result); err != nil {
		return err
	}
	return printJSON(out, result)
}

func runSubmit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	endpoint := endpointFlag(fs)
	keyPath := fs.String("key", "listing.key", "Path to the hex encoded signing key")
	method := fs.String("method", "", "Method name, e.g. listing_create")
	payload := fs.String("payload", "{}", "Payload object as JSON; a deadline is added when absent")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *method == "" {
		return fmt.Errorf("method is required")
	}
	key, err := ethcrypto.LoadECDSA(*keyPath)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	body, err := decodePayload(*payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	return submit(ctx, rpc.NewClient(*endpoint, nil), key, *method, body, out)
}

func decodePayload(raw string) (map[string]interface{}, error) {
	body := map[string]interface{}{}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return body, nil
}

func submit(ctx context.Context, client *rpc.Client, key *ecdsa.PrivateKey, method string, payload map[string]interface{}, out io.Writer) error {
	var result json.RawMessage
	if err := client.Submit(ctx, key, method, payload, &result); err != nil {
		return err
	}
	return printJSON(out, result)
}

func printJSON(out io.Writer, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err = out.Write(append(raw, '\n'))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
