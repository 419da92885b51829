package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{":3002", 3002, false},
		{"127.0.0.1:80", 80, false},
		{"3002", 0, true},
		{":http", 0, true},
		{":0", 0, true},
	}
	for _, tt := range tests {
		got, err := ListenPort(tt.addr)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ListenPort(%q) = %d, %v", tt.addr, got, err)
		}
	}
}

func TestPeersFiltersAndDedupes(t *testing.T) {
	a := net.IPv4(192, 168, 1, 5)
	got := peers([]*mdns.ServiceEntry{
		{Name: "b", AddrV4: net.IPv4(192, 168, 1, 9), Port: 3002},
		{Name: "a", AddrV4: a, Port: 3002, InfoFields: []string{"inkboard"}},
		{Name: "a-again", AddrV4: a, Port: 3002},
		{Name: "v6only", Port: 3002},
		{Name: "noport", AddrV4: a},
		nil,
	})
	if len(got) != 2 {
		t.Fatalf("peers = %+v", got)
	}
	if got[0].Name != "a" || got[0].URL() != "http://192.168.1.5:3002" || got[1].Name != "b" {
		t.Errorf("peers = %+v", got)
	}
}

func TestBrowseExpiredContext(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if _, err := Browse(ctx); err == nil {
		t.Error("expected an error for an expired context")
	}
}
