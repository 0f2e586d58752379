package progress

import "io"

// Reader wraps an io.Reader and reports cumulative progress via a callback.
// The callback fires at most once per reportInterval bytes, plus once on the
// read that crosses it, so large transfers do not flood their consumer.
type Reader struct {
	Reader         io.Reader
	Total          int64 // expected total bytes, <= 0 when unknown
	OnProgress     func(written int64, total int64)
	totalRead      int64
	sinceReport    int64
	reportInterval int64
}

func NewReader(r io.Reader, total int64, interval int64, cb func(written int64, total int64)) *Reader {
	return &Reader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.sinceReport += int64(n)

		if pr.sinceReport >= pr.reportInterval || pr.totalRead == pr.Total {
			pr.OnProgress(pr.totalRead, pr.Total)
			pr.sinceReport = 0
		}
	}

	return n, err
}

// Written returns the cumulative number of bytes read so far.
func (pr *Reader) Written() int64 {
	return pr.totalRead
}
