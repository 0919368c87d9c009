package dummy

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ServerConfig configures the local stand-in function endpoint.
type ServerConfig struct {
	Port  int
	Token string // when set, requests must carry this bearer token
}

// Start runs a local server that behaves like the deployed function:
// a cold instance adds startup latency to its first response, and the
// coldstart query marker terminates the simulated instance after the
// response is sent. /limited and /flaky exercise the retry policy.
func Start(cfg ServerConfig) {
	mux := http.NewServeMux()

	var mu sync.Mutex
	warm := false

	authorized := func(r *http.Request) bool {
		if cfg.Token == "" {
			return true
		}
		return r.Header.Get("Authorization") == "Bearer "+cfg.Token
	}

	// Function under test. Cold responses take ~1.5s, warm ~30ms.
	mux.HandleFunc("/fn", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		mu.Lock()
		wasWarm := warm
		warm = true
		mu.Unlock()

		if !wasWarm {
			time.Sleep(time.Duration(rand.Intn(500)+1200) * time.Millisecond)
		} else {
			time.Sleep(time.Duration(rand.Intn(30)+15) * time.Millisecond)
		}

		if r.URL.Query().Has("coldstart") {
			mu.Lock()
			warm = false
			mu.Unlock()
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Every third request gets through.
	var limitedCount int
	mux.HandleFunc("/limited", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		limitedCount++
		n := limitedCount
		mu.Unlock()

		if n%3 != 0 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("429 Too Many Requests"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Random transient failures.
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if rand.Float32() < 0.3 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("500 Internal Server Error"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("Dummy function running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: /fn (honors ?coldstart), /limited, /flaky")
	if cfg.Token != "" {
		fmt.Printf("   Expecting bearer token %q\n", truncate(cfg.Token, 8))
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server failed: %v\n", err)
		}
	}()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
