package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"

	"github.com/kbukum/orderedpipe/pipeline"
)

const (
	digestCmdName = "digest"
	digestShort   = "Print the BLAKE2b-256 digest of every input line"
	digestLong    = `
		Hashes each line of the given files, or of standard input, with
		BLAKE2b-256 and prints "<hex>  <line>" in input order.

		With --key the digest is a keyed MAC. The key is given in hex and may be
		up to 64 bytes long.`
)

type digestFlags struct {
	key string
}

type digested struct {
	sum  string
	text string
}

func digestCmd(a *app) *cobra.Command {
	flag := &digestFlags{}
	cmd := &cobra.Command{
		Use:   digestCmdName + " [file...]",
		Short: digestShort,
		Long:  heredoc.Doc(digestLong),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(flag.key)
			if err != nil {
				return fmt.Errorf("--key: %w", err)
			}
			if len(key) > blake2b.Size {
				return fmt.Errorf("--key: at most %d bytes, got %d", blake2b.Size, len(key))
			}
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return digestLines(ctx, a, readLines(args, cmd.InOrStdin(), a.log), key, bufio.NewWriter(cmd.OutOrStdout()))
			})
		},
	}
	cmd.Flags().StringVar(&flag.key, "key", "", "hex-encoded MAC key")
	return cmd
}

func digestLines(ctx context.Context, a *app, lines *pipeline.Pipeline[line], key []byte, w *bufio.Writer) error {
	sums, err := transform(a, digestCmdName, lines, func(_ context.Context, l line) (digested, error) {
		sum, err := digest(key, l.text)
		return digested{sum: sum, text: l.text}, err
	})
	if err != nil {
		return err
	}
	err = pipeline.ForEach(ctx, sums, func(_ context.Context, d digested) error {
		_, err := fmt.Fprintf(w, "%s  %s\n", d.sum, d.text)
		return err
	})
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	return err
}

// digest returns the hex BLAKE2b-256 of text, keyed when key is not empty.
func digest(key []byte, text string) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil)), nil
}
