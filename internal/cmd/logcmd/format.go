package logcmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/rzbill/flolog/internal/record"
)

// printer writes records either as tab-separated text lines or as one JSON
// object per line.
type printer struct {
	w   io.Writer
	enc *json.Encoder
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	p := &printer{w: w}
	if asJSON {
		p.enc = json.NewEncoder(w)
	}
	return p
}

func (p *printer) print(rec *record.Record) error {
	if p.enc != nil {
		return p.enc.Encode(decodedRecord(rec))
	}
	_, err := fmt.Fprintf(p.w, "%d\t%d:%d\t%s\t%s\n",
		rec.QueueSeq, rec.TopicID, rec.TopicSeq, formatTimestamp(rec.Timestamp), payloadText(rec.Data))
	return err
}

func formatTimestamp(ns int64) string {
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}

// payloadText returns printable payloads as-is and everything else as
// "base64:<...>".
func payloadText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return "base64:" + base64.StdEncoding.EncodeToString(b)
}

// decodedRecord returns the header fields plus one of data_json, data_text
// or data_b64.
func decodedRecord(rec *record.Record) map[string]any {
	out := map[string]any{
		"queue_seq": rec.QueueSeq,
		"topic_id":  rec.TopicID,
		"topic_seq": rec.TopicSeq,
		"timestamp": rec.Timestamp,
	}
	data := rec.Data
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		var v any
		if json.Unmarshal(data, &v) == nil {
			out["data_json"] = v
			return out
		}
	}
	if utf8.Valid(data) {
		out["data_text"] = string(data)
		return out
	}
	out["data_b64"] = base64.StdEncoding.EncodeToString(data)
	return out
}
