package ingestion_engine

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// streamChunk groups incoming fragments into token-bounded chunks with optional overlap.
//
// frags:          upstream fragments channel.
// targetTokens:   approximate tokens per chunk.
// overlapTokens:  tokens to retain from the end of the previous chunk as seed of the next (e.g., 50).
// out:            receive-only channel of chunk structs with Pos/Text/TokenCnt.
//
// A chunk is only emitted when it holds at least one fragment not already
// sent, so the tail never repeats the previous chunk's overlap.
func (i *FileIndexer) streamChunk(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan string,
	targetTokens int,
	overlapTokens int,
) <-chan chunk {
	out := make(chan chunk, 8)

	g.Go(func() error {
		defer close(out)

		var (
			buf    []string
			tokSum int
			fresh  int
			pos    int
		)

		flush := func() error {
			if fresh == 0 {
				return nil
			}
			ch := chunk{Pos: pos, Text: strings.Join(buf, "\n"), TokenCnt: tokSum}
			pos++

			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}
			i.logger.Debug("chunk emitted",
				zap.Int("position", ch.Pos), zap.Int("tokens", ch.TokenCnt), zap.Int("fragments", len(buf)))

			// Keep a tail of roughly overlapTokens, never the whole buffer.
			keep := 0
			remain := overlapTokens
			for j := len(buf) - 1; j > 0 && remain > 0; j-- {
				remain -= ApproxTokens(buf[j])
				keep++
			}
			buf = append([]string(nil), buf[len(buf)-keep:]...)

			tokSum = 0
			for _, s := range buf {
				tokSum += ApproxTokens(s)
			}
			fresh = 0
			return nil
		}

		for frag := range frags {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			buf = append(buf, frag)
			tokSum += ApproxTokens(frag)
			fresh++

			if tokSum >= targetTokens {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	return out
}

// ApproxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func ApproxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
