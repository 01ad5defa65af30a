package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(zap.NewNop()).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWSRequiresID(t *testing.T) {
	srv := httptest.NewServer(NewServer(zap.NewNop()).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestFramePayloadRoundTrip(t *testing.T) {
	in := Frame{Type: FrameData, Src: "a", Dst: "b", Payload: []byte{0x00, 0xff, 0x10}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Frame
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(out.Payload) != string(in.Payload) || out.Src != "a" || out.Dst != "b" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
