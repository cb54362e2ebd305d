// Command keygen writes a fresh RSA key pair for signing tokens.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/iliyamo/auth-service/internal/utils"
)

type options struct {
	bits   int
	outDir string
	force  bool
}

func main() {
	var opts options
	flag.IntVarP(&opts.bits, "bits", "b", 2048, "RSA key size in bits")
	flag.StringVarP(&opts.outDir, "out-dir", "o", "keys", "directory receiving private.pem and public.pem")
	flag.BoolVarP(&opts.force, "force", "f", false, "overwrite existing key files")
	flag.Parse()

	if err := run(opts); err != nil {
		slog.Error("keygen failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.bits < 2048 {
		return fmt.Errorf("--bits must be at least 2048, got %d", opts.bits)
	}
	privPath := filepath.Join(opts.outDir, "private.pem")
	pubPath := filepath.Join(opts.outDir, "public.pem")
	if !opts.force {
		for _, p := range []string{privPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s exists, pass --force to overwrite", p)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}

	privPEM, pubPEM, err := utils.GenerateKeyPair(opts.bits)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return err
	}
	slog.Info("key pair written", slog.String("private", privPath), slog.String("public", pubPath))
	return nil
}
