package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// isoTimestamp renders t the way the gateway expects it in both the signed
// message and the timestamp header: UTC, millisecond precision, Z suffix.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// sign computes the request signature: base64(HMAC-SHA256(secret,
// timestamp + METHOD + requestPath + body)). requestPath includes the query
// string; body is empty for GET requests.
func sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
