package main

import (
	"bufio"
	"context"
	"fmt"
	"regexp"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/kbukum/orderedpipe/pipeline"
)

const (
	grepCmdName = "grep"
	grepShort   = "Print the input lines matching a regular expression"
	grepLong    = `
		Matches each line of the given files, or of standard input, against
		PATTERN (RE2 syntax) and prints the matching lines in input order.

		With more than one file each line is prefixed with its file name.`
)

type grepFlags struct {
	invert     bool
	count      bool
	lineNumber bool
}

func grepCmd(a *app) *cobra.Command {
	flag := &grepFlags{}
	cmd := &cobra.Command{
		Use:   grepCmdName + " PATTERN [file...]",
		Short: grepShort,
		Long:  heredoc.Doc(grepLong),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			re, err := regexp.Compile(args[0])
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			files := args[1:]
			return a.run(cmd.Context(), func(ctx context.Context) error {
				w := bufio.NewWriter(cmd.OutOrStdout())
				err := grepLines(ctx, a, readLines(files, cmd.InOrStdin(), a.log), re, flag, len(files) > 1, w)
				if ferr := w.Flush(); err == nil {
					err = ferr
				}
				return err
			})
		},
	}
	flags := cmd.Flags()
	flags.BoolVarP(&flag.invert, "invert-match", "v", false, "select non-matching lines")
	flags.BoolVarP(&flag.count, "count", "c", false, "print only the number of selected lines")
	flags.BoolVarP(&flag.lineNumber, "line-number", "n", false, "prefix each line with its line number")
	return cmd
}

func grepLines(ctx context.Context, a *app, lines *pipeline.Pipeline[line], re *regexp.Regexp, flag *grepFlags, withFile bool, w *bufio.Writer) error {
	selected, err := filter(a, grepCmdName, lines, func(_ context.Context, l line) (bool, error) {
		return re.MatchString(l.text) != flag.invert, nil
	})
	if err != nil {
		return err
	}

	if flag.count {
		counted := pipeline.Reduce(selected, 0, func(n int, _ line) int { return n + 1 })
		n, err := pipeline.Collect(ctx, counted)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, n[0])
		return err
	}

	return pipeline.ForEach(ctx, selected, func(_ context.Context, l line) error {
		if withFile {
			if _, err := fmt.Fprintf(w, "%s:", l.file); err != nil {
				return err
			}
		}
		if flag.lineNumber {
			if _, err := fmt.Fprintf(w, "%d:", l.no); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintln(w, l.text)
		return err
	})
}
