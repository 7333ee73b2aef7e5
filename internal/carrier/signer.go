package carrier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
)

const (
	HeaderAppID     = "X-App-Id"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// Sign returns hex(HMAC-SHA256(secret, "appID:timestamp:payload")).
func Sign(appID, secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(appID))
	mac.Write([]byte{':'})
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{':'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time.
func Verify(appID, secret string, timestamp int64, payload []byte, signature string) bool {
	expected := Sign(appID, secret, timestamp, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func setSignedHeaders(h http.Header, creds Credentials, timestamp int64, payload []byte) {
	h.Set(HeaderAppID, creds.AppID)
	h.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	h.Set(HeaderSignature, Sign(creds.AppID, creds.AppSecret, timestamp, payload))
}
