// Command echoserver is the bundled local TCP service used only by the
// rtun examples (spec.md §1: "the bundled HTTP test server used only by
// examples" is explicitly an out-of-core-scope collaborator). It gives a
// reader something to point `rtun connect --local-port` at.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	mode := flag.String("mode", "echo", "echo (raw TCP echo) or http (canned 200 OK response)")
	flag.Parse()

	addr := fmt.Sprintf("127.0.0.1:%d", *port)

	switch *mode {
	case "http":
		http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		log.Printf("echoserver: serving HTTP on %s", addr)
		log.Fatal(http.ListenAndServe(addr, nil))
	case "echo":
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("echoserver: listen %s: %v", addr, err)
		}
		log.Printf("echoserver: echoing raw TCP on %s", addr)
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("echoserver: accept: %v", err)
				continue
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	default:
		log.Fatalf("echoserver: unknown mode %q", *mode)
	}
}
