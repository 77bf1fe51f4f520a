package chat

import (
	"log/slog"
)

// StartOutboundWriter drains out onto conn in its own goroutine and returns
// a channel closed when the writer has stopped. The writer is the only
// goroutine that writes to conn once it is started.
//
// On a write failure it closes out, so later broadcasts to this peer fail
// fast, and closes conn so the reading side notices too. When out is
// closed by the handler it writes what is still buffered and then closes conn.
func StartOutboundWriter(conn LineConn, out *Queue, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			_ = conn.Close()
		}()

		for {
			msg, ok := out.Dequeue()
			if !ok {
				return
			}
			if err := conn.WriteLine(msg.String()); err != nil {
				out.Close()
				if isEndOfStream(err) {
					logger.Info("outbound writer stopped: connection closed")
				} else {
					logger.Warn("outbound write failed", "error", err)
				}
				return
			}
		}
	}()
	return done
}
