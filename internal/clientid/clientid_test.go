package clientid

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newRequest(headers map[string]string, remoteAddr string) *http.Request {
	r := &http.Request{Header: http.Header{}, RemoteAddr: remoteAddr}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestIdentifyPriority(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded wins", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"}, "9.9.9.9:1234", "1.2.3.4"},
		{"real-ip fallback", map[string]string{"X-Real-IP": "5.6.7.8"}, "9.9.9.9:1234", "5.6.7.8"},
		{"remote addr fallback", map[string]string{}, "9.9.9.9:1234", "9.9.9.9:1234"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Identify(newRequest(c.headers, c.remote))
			assert.Equal(t, c.want, got)
		})
	}
}
