// Package main runs a demo client: it subscribes to the admin activity
// WebSocket feed, then dispatches an event so there is something to watch.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the dispatch below is visible on the feed.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/admin/activity/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	log.Printf("connected to %s", u.String())

	go func() {
		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("activity: %s %s", msg.Type, string(msg.Payload))
		}
	}()

	post := func(path string, body string) {
		req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-Id", "t_demo")
		req.Header.Set("X-Role", "admin")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		log.Printf("POST %s -> %d", path, resp.StatusCode)
	}

	post("/v1/subscriptions", `{"triggerType":"order.completed","targetUrl":"http://localhost:9999/hook","secret":"demo-secret"}`)
	post("/v1/events/dispatch", `{"triggerType":"order.completed","data":{"order_id":"ord-1","amount":12.5,"currency":"USD"}}`)

	time.Sleep(3 * time.Second)
}
