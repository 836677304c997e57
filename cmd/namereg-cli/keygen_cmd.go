package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/amalashkevich/vanitynamereg/cmd/internal/passphrase"
	"github.com/amalashkevich/vanitynamereg/crypto"
)

const defaultPassphraseEnv = "VNR_KEYSTORE_PASSPHRASE"

type keystoreResult struct {
	Address  string `json:"address"`
	Keystore string `json:"keystore"`
}

func runKeygenCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var out, passEnv string
	fs.StringVar(&out, "out", "vnr-account.json", "keystore file to create")
	fs.StringVar(&passEnv, "passphrase-env", defaultPassphraseEnv, "environment variable holding the passphrase")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists; refusing to overwrite", out))
	}

	source := passphrase.NewSource(passEnv, passphrase.WithLabel("account keystore"), passphrase.WithConfirmation())
	pass, err := source.Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, fmt.Sprintf("generate key: %v", err))
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		return printError(stderr, fmt.Sprintf("write keystore: %v", err))
	}
	return writeKeystoreResult(stdout, stderr, key, out)
}

func runAddressCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	var path, passEnv string
	fs.StringVar(&path, "keystore", "vnr-account.json", "keystore file")
	fs.StringVar(&passEnv, "passphrase-env", defaultPassphraseEnv, "environment variable holding the passphrase")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	source := passphrase.NewSource(passEnv, passphrase.WithLabel("account keystore"))
	pass, err := source.Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.LoadFromKeystore(strings.TrimSpace(path), pass)
	if err != nil {
		return printError(stderr, fmt.Sprintf("open keystore: %v", err))
	}
	return writeKeystoreResult(stdout, stderr, key, path)
}

func writeKeystoreResult(stdout, stderr io.Writer, key *crypto.PrivateKey, path string) int {
	encoded, err := json.Marshal(keystoreResult{
		Address:  key.PubKey().Address().String(),
		Keystore: path,
	})
	if err != nil {
		return printError(stderr, err.Error())
	}
	writeRPCResult(stdout, encoded)
	return 0
}
