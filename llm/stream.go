package llm

import (
	"io"
	"log/slog"
	"time"
)

// defaultChunkTimeout bounds the wait for each individual stream chunk.
const defaultChunkTimeout = 30 * time.Second

type readResult struct {
	data []byte
	err  error
}

// readStream drives the chunk framer and accumulator over a streamed
// response body until the terminal sentinel, a failure, or a per-chunk
// timeout.
//
// Each chunk read is bounded by chunkTimeout; exceeding it calls abort
// (cancelling the in-flight transport request) and fails with a timeout
// classification carrying the partially accumulated text. The stream
// ending via transport EOF without the terminal sentinel is a failure:
// a clean provider stream only ends via the sentinel. The timeout timer
// is restarted on every successful chunk read and always cleared before
// returning.
func readStream(body io.ReadCloser, abort func(), chunkTimeout time.Duration, allowedNames []string, logger *slog.Logger) (*ParsedResponseMessage, error) {
	if chunkTimeout <= 0 {
		chunkTimeout = defaultChunkTimeout
	}

	quit := make(chan struct{})
	defer close(quit)
	defer abort()
	defer body.Close()

	chunks := make(chan readResult)
	go func() {
		defer close(chunks)
		buf := make([]byte, 4096)
		for {
			n, err := body.Read(buf)
			res := readResult{err: err}
			if n > 0 {
				res.data = append([]byte(nil), buf[:n]...)
			}
			select {
			case chunks <- res:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	framer := &chunkFramer{}
	acc := newStreamAccumulator(logger)

	timer := time.NewTimer(chunkTimeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			abort()
			return nil, &TimeoutError{
				SDKError:    SDKError{Message: "timed out waiting for stream chunk"},
				PartialText: acc.partialText(),
			}

		case res := <-chunks:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

			for _, record := range framer.Push(res.data) {
				if err := acc.ingest(record); err != nil {
					abort()
					return nil, err
				}
			}

			if framer.Done() {
				return acc.finalize(allowedNames)
			}

			if res.err != nil {
				if res.err == io.EOF {
					return nil, &ProtocolError{SDKError: SDKError{
						Message: "stream ended prematurely without terminal sentinel",
					}}
				}
				return nil, &NetworkError{SDKError: SDKError{
					Message: "stream read failed",
					Cause:   res.err,
				}}
			}

			timer.Reset(chunkTimeout)
		}
	}
}
