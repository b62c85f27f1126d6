package callback

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestListener_DeliversCodeAndState(t *testing.T) {
	l, err := New("http://127.0.0.1:0/callback", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		url := fmt.Sprintf("http://%s/callback?code=abc&state=xyz", l.Addr())
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
		}
	}()

	res, err := l.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Code != "abc" || res.State != "xyz" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestListener_404OnOtherPaths(t *testing.T) {
	l, err := New("http://127.0.0.1:0/callback", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/other", l.Addr()))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	// Clean up the still-pending listener.
	go func() {
		_, _ = http.Get(fmt.Sprintf("http://%s/callback?state=s", l.Addr()))
	}()
	_, _ = l.Wait(context.Background(), time.Second)
}

func TestListener_TimesOut(t *testing.T) {
	l, err := New("http://127.0.0.1:0/callback", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	_, err = l.Wait(context.Background(), 30*time.Millisecond)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
}
