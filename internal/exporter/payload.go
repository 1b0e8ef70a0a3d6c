package exporter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/szibis/sa-log-shipper/internal/compression"
	"github.com/szibis/sa-log-shipper/internal/record"
)

// Form field names understood by the collector.
const (
	FieldDataList = "data_list"
	FieldGzip     = "gzip"
)

// ContentType is the request content type of an encoded payload.
const ContentType = "application/x-www-form-urlencoded"

// EncodePayload serializes batch as a JSON array, gzips it, base64-encodes
// the result and wraps it in a url-encoded form:
//
//	data_list=<base64(gzip(json))>&gzip=1
func EncodePayload(batch record.Batch, level compression.Level) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if batch == nil {
		batch = record.Batch{}
	}
	if err := enc.Encode(batch); err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	raw := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	compressed, err := compression.Compress(raw, compression.Config{Type: compression.TypeGzip, Level: level})
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set(FieldDataList, base64.StdEncoding.EncodeToString(compressed))
	form.Set(FieldGzip, "1")
	return []byte(form.Encode()), nil
}

// DecodePayload reverses EncodePayload. Numbers are decoded as json.Number.
func DecodePayload(body []byte) (record.Batch, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	data := form.Get(FieldDataList)
	if data == "" {
		return nil, fmt.Errorf("missing %s field", FieldDataList)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	if form.Get(FieldGzip) == "1" {
		if raw, err = compression.Decompress(raw, compression.TypeGzip); err != nil {
			return nil, err
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var batch record.Batch
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return batch, nil
}
