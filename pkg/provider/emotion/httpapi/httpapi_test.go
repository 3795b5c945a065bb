package httpapi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxgate/voxgate/pkg/provider/emotion/httpapi"
)

func TestNew_EmptyURL(t *testing.T) {
	if _, err := httpapi.New(""); err == nil {
		t.Fatal("New with empty URL should fail")
	}
}

func TestInfer_DecodesPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emotion" {
			t.Errorf("got %s %s; want POST /emotion", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"label":"happy","confidence":0.86,"distribution":{"happy":0.86,"neutral":0.10,"sad":0.04}}`)
	}))
	t.Cleanup(srv.Close)

	client, err := httpapi.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pred, err := client.Infer(context.Background(), make([]byte, 320), 16000)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if pred.Label != "happy" || pred.Confidence != 0.86 {
		t.Errorf("prediction = %s/%.2f; want happy/0.86", pred.Label, pred.Confidence)
	}
	if pred.Distribution["neutral"] != 0.10 {
		t.Errorf("distribution[neutral] = %v; want 0.10", pred.Distribution["neutral"])
	}
}

func TestInfer_MissingLabelFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	client, err := httpapi.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Infer(context.Background(), make([]byte, 320), 16000); err == nil {
		t.Fatal("expected error for response without a label")
	}
}

func TestInfer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client, err := httpapi.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Infer(context.Background(), make([]byte, 320), 16000); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}
