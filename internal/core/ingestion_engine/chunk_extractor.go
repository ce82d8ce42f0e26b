package ingestion_engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// streamChunk groups incoming fragments into token-bounded chunks.
// The tail of each chunk, up to overlapTokens, seeds the next one.
func streamChunk(
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
			pos    int
			fresh  int // fragments added since the last flush
		)

		flush := func() error {
			if fresh == 0 {
				return nil
			}
			ch := chunk{Pos: pos, Text: strings.Join(buf, "\n"), TokenCnt: tokSum}
			pos++
			fresh = 0

			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}

			if overlapTokens <= 0 {
				buf = buf[:0]
				tokSum = 0
				return nil
			}

			var keep []string
			remain := overlapTokens
			// never keep the whole chunk, or it would be re-emitted forever
			for j := len(buf) - 1; j > 0 && remain > 0; j-- {
				keep = append([]string{buf[j]}, keep...)
				remain -= approxTokens(buf[j])
			}
			buf = keep
			tokSum = 0
			for _, s := range buf {
				tokSum += approxTokens(s)
			}
			return nil
		}

		for frag := range frags {
			if err := ctx.Err(); err != nil {
				return err
			}
			buf = append(buf, frag)
			tokSum += approxTokens(frag)
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

// approxTokens estimates ~4 chars per token.
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
