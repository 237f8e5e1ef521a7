package main

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/kbukum/orderedpipe/logger"
	"github.com/kbukum/orderedpipe/pipeline"
)

const (
	stdinName     = "-"
	maxLineLength = 1 << 20
)

// line is one input line and where it came from.
type line struct {
	file string
	no   int
	text string
}

// readLines concatenates the lines of files in order. No files, or "-",
// reads stdin. Each file is opened when the traversal reaches it, which is
// logged at debug level.
func readLines(files []string, stdin io.Reader, log *logger.Logger) *pipeline.Pipeline[line] {
	if len(files) == 0 {
		files = []string{stdinName}
	}
	sources := make([]*pipeline.Pipeline[line], 0, len(files))
	for _, f := range files {
		sources = append(sources, pipeline.FromFunc(func(context.Context) pipeline.Iterator[line] {
			return &lineIter{file: f, stdin: stdin}
		}))
	}
	return pipeline.Tap(pipeline.Concat(sources...), func(_ context.Context, l line) error {
		if l.no == 1 {
			log.Debug("reading input", logger.Fields(logger.FieldInput, l.file))
		}
		return nil
	})
}

type lineIter struct {
	file    string
	stdin   io.Reader
	closer  io.Closer
	scanner *bufio.Scanner
	no      int
}

func (it *lineIter) Next(ctx context.Context) (line, bool, error) {
	if err := ctx.Err(); err != nil {
		return line{}, false, err
	}
	if it.scanner == nil {
		if err := it.open(); err != nil {
			return line{}, false, err
		}
	}
	if !it.scanner.Scan() {
		return line{}, false, it.scanner.Err()
	}
	it.no++
	return line{file: it.file, no: it.no, text: it.scanner.Text()}, true, nil
}

func (it *lineIter) open() error {
	r := it.stdin
	if it.file != stdinName {
		f, err := os.Open(it.file)
		if err != nil {
			return err
		}
		it.closer = f
		r = f
	}
	it.scanner = bufio.NewScanner(r)
	it.scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return nil
}

func (it *lineIter) Close() error {
	if it.closer == nil {
		return nil
	}
	err := it.closer.Close()
	it.closer = nil
	return err
}
