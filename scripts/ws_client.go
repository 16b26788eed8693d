// Package main runs a demo WebSocket client for driver events.
// Start the API with --seed first.
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
	Event   json.RawMessage `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path string, body any, hdr map[string]string, out any) {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: %s", path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatal(err)
		}
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	driverID := os.Getenv("DRIVER_ID")
	if driverID == "" {
		driverID = "drv-002"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	dispatcher := map[string]string{"X-Role": "dispatcher", "X-User-Id": "ws-client"}
	driver := map[string]string{"X-Role": "driver", "X-Driver-Id": driverID}

	// Cluster pending orders for a car
	var optResp struct {
		Clusters []struct {
			ClusterID string `json:"clusterId"`
			Orders    []struct {
				OrderID string `json:"orderId"`
			} `json:"orders"`
		} `json:"clusters"`
	}
	post(base, "/v1/optimize", map[string]any{"vehicleType": "car"}, dispatcher, &optResp)
	if len(optResp.Clusters) == 0 {
		log.Fatal("no clusters returned")
	}
	cl := optResp.Clusters[0]
	log.Printf("Cluster %s: %d orders", cl.ClusterID, len(cl.Orders))

	// Connect WS as the driver
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/drivers/" + driverID + "/events/ws"}
	hdr := http.Header{}
	for k, v := range driver {
		hdr.Set(k, v)
	}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s%s", m.Type, string(m.Event), string(m.Payload))
		}
	}()

	// Commit the cluster, then accept the first assignment
	ids := make([]string, len(cl.Orders))
	for i, o := range cl.Orders {
		ids[i] = o.OrderID
	}
	var commit struct {
		TrackingNumbers []string `json:"trackingNumbers"`
		Assignments     []struct {
			ID string `json:"id"`
		} `json:"assignments"`
	}
	time.Sleep(200 * time.Millisecond)
	post(base, "/v1/dispatch/commit", map[string]any{
		"clusterId": cl.ClusterID,
		"driverId":  driverID,
		"shopId":    "shop-demo",
		"orderIds":  ids,
	}, dispatcher, &commit)
	log.Printf("Tracking numbers: %v", commit.TrackingNumbers)
	if len(commit.Assignments) > 0 {
		post(base, "/v1/assignments/"+commit.Assignments[0].ID+"/accept", struct{}{}, driver, nil)
	}

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
