package ingestion_engine

import (
	"bufio"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// streamExtract converts an io.Reader into a stream of small text fragments.
//
// r:           the extracted text of a file.
// maxFragLen:  byte cap per fragment; long lines are split on rune boundaries.
// out:         receive-only channel of fragments; closed when extraction completes.
func (i *FileIndexer) streamExtract(
	ctx context.Context,
	g *errgroup.Group,
	r io.Reader,
	maxFragLen int,
) <-chan string {
	out := make(chan string, 8)

	g.Go(func() error {
		defer close(out)

		sc := bufio.NewScanner(r)
		// Allow up to 1MB lines; spreadsheet rows can be long.
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 1<<20)

		for sc.Scan() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}

			for _, frag := range splitFragment(line, maxFragLen) {
				select {
				case out <- frag:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return sc.Err()
	})

	return out
}

// splitFragment cuts s into pieces of at most max bytes without splitting a rune.
func splitFragment(s string, max int) []string {
	if max <= 0 || len(s) <= max {
		return []string{s}
	}
	var out []string
	for len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(s)
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
