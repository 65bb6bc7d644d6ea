package fileshare

import "io"

// Progress is one download progress observation.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
}

// Percent returns the completed percentage, or -1 when the total is unknown.
func (p Progress) Percent() int64 {
	if p.TotalBytes <= 0 {
		return -1
	}
	return p.BytesTransferred * 100 / p.TotalBytes
}

// progressWriter wraps the destination writer and emits an observation each
// time cumulative progress advances by at least one percentage point of the
// declared total. When the total is unknown (<= 0) nothing is emitted.
type progressWriter struct {
	w       io.Writer
	total   int64
	done    int64
	lastPct int64
	onStep  func(Progress)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 {
		pw.done += int64(n)
		if pw.total > 0 && pw.onStep != nil {
			if pct := pw.done * 100 / pw.total; pct > pw.lastPct {
				pw.lastPct = pct
				pw.onStep(Progress{BytesTransferred: pw.done, TotalBytes: pw.total})
			}
		}
	}
	return n, err
}
