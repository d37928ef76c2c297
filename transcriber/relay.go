package transcriber

import (
	"context"
	"iter"

	"speechtext/audio"
	"speechtext/usage"
)

// Relay turns captured frames into wire payloads of at most maxPayload
// bytes (unlimited when maxPayload <= 0). Each frame is recorded in acct
// exactly once, before its payloads are yielded. The sequence ends early
// once ctx is done.
func Relay(ctx context.Context, frames iter.Seq[audio.Frame], acct *usage.Accountant, maxPayload int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for f := range frames {
			if ctx.Err() != nil {
				return
			}
			if acct != nil {
				acct.RecordFrame(f.Duration())
			}
			payload := f.Bytes()
			for len(payload) > 0 {
				n := len(payload)
				if maxPayload > 0 && n > maxPayload {
					n = maxPayload
				}
				if !yield(payload[:n]) {
					return
				}
				payload = payload[n:]
			}
		}
	}
}
