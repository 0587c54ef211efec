// Thin CLI over the server's loopback admin endpoints.
//
//	admin pause | resume
//	admin kick -snake S3
//	admin tickrate -hz 20
//	admin scores [-limit 10]
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

func main() {
	var (
		base  = flag.String("addr", "http://127.0.0.1:8080", "server base url")
		snake = flag.String("snake", "", "snake id (kick)")
		hz    = flag.Int("hz", 0, "tick rate (tickrate)")
		limit = flag.Int("limit", 10, "row limit (scores)")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}
	client := &http.Client{Timeout: 10 * time.Second}

	switch flag.Arg(0) {
	case "pause":
		post(client, *base+"/v1/admin/pause", nil)
	case "resume":
		post(client, *base+"/v1/admin/resume", nil)
	case "kick":
		if *snake == "" {
			fmt.Fprintln(os.Stderr, "kick needs -snake")
			os.Exit(2)
		}
		post(client, *base+"/v1/admin/kick", url.Values{"snake_id": {*snake}})
	case "tickrate":
		if *hz <= 0 {
			fmt.Fprintln(os.Stderr, "tickrate needs -hz")
			os.Exit(2)
		}
		post(client, *base+"/v1/admin/tickrate", url.Values{"hz": {strconv.Itoa(*hz)}})
	case "scores":
		get(client, *base+"/v1/admin/scores?limit="+strconv.Itoa(*limit))
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin [flags] pause|resume|kick|tickrate|scores")
	flag.PrintDefaults()
	os.Exit(2)
}

func post(client *http.Client, rawURL string, q url.Values) {
	if q != nil {
		rawURL += "?" + q.Encode()
	}
	resp, err := client.Post(rawURL, "application/json", nil)
	finish(resp, err)
}

func get(client *http.Client, rawURL string) {
	resp, err := client.Get(rawURL)
	finish(resp, err)
}

func finish(resp *http.Response, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s %s", resp.Status, body)
	if len(body) == 0 || body[len(body)-1] != '\n' {
		fmt.Println()
	}
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}
