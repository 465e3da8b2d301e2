package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vstarodubtsev/cifsd/api"
	"github.com/vstarodubtsev/cifsd/ntlm"
	"github.com/vstarodubtsev/cifsd/stores"
)

const version = "1.0.2"

var storesDir = flag.String("dir", ".", "directory for the config and persistent data")

func main() {
	log.Printf("Starting cifsd v%s...\n", version)

	flag.Parse()
	dir, err := filepath.Abs(*storesDir)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := stores.ReadConfig(dir)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Address == "" {
		cfg.Address = ":445"
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 64
	}

	bs, err := stores.NewJSONBansStore(dir)
	if err != nil {
		log.Fatal(err)
	}
	as, err := stores.NewJSONAccountStore(dir)
	if err != nil {
		log.Fatal(err)
	}
	ss, err := stores.NewSharesStore(dir)
	if err != nil {
		log.Fatal(err)
	}

	auth := ntlm.NewServer(cfg.ServerName, cfg.Workgroup)
	for user, password := range as.Accounts() {
		auth.AddAccount(user, password)
	}

	// Accounts held in PostgreSQL supplement the JSON store. The handle
	// stays open for live credential and share policy lookups.
	var db *stores.Database
	if cfg.UseDatabase {
		db, err = stores.NewStore(context.Background(), cfg.Database)
		if err != nil {
			log.Fatal(err)
		}
		accounts, err := db.GetAccounts()
		if err != nil {
			db.Close()
			log.Fatal(err)
		}
		for user, password := range accounts {
			auth.AddAccount(user, password)
		}
	}

	l, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Listening at %s ...\n", l.Addr())
	defer l.Close()

	server := newServer(l, cfg, auth, bs)
	server.db = db
	for _, sh := range ss.Shares() {
		if err := server.registerShare(sh); err != nil {
			log.Printf("Error registering share %s: %v\n", sh.Name, err)
		}
	}

	if cfg.APIPort > 0 {
		backend := &controlBackend{srv: server, shares: ss, accounts: as}
		handler := api.BasicAuth(cfg.APIPassword)(api.NewAPI(backend))
		go func() {
			addr := fmt.Sprintf("localhost:%d", cfg.APIPort)
			if err := http.ListenAndServe(addr, handler); err != nil {
				log.Println("API server stopped:", err)
			}
		}()
	}

	// Watch for the stop signal; meanwhile run periodic maintenance.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-c:
				log.Println("Received interrupt signal, shutting down...")
				server.mu.Lock()
				server.enabled = false
				conns := make([]*connection, 0, len(server.connectionList))
				for _, cn := range server.connectionList {
					conns = append(conns, cn)
				}
				server.mu.Unlock()
				for _, cn := range conns {
					server.closeConnection(cn)
				}
				if db != nil {
					db.Close()
				}
				l.Close()
				os.Exit(0)
			case <-ticker.C:
				// Reset the abuse counters and drop idle connections.
				server.mu.Lock()
				server.connectionCount = make(map[string]int)
				conns := make([]*connection, 0, len(server.connectionList))
				for _, cn := range server.connectionList {
					conns = append(conns, cn)
				}
				server.mu.Unlock()
				for _, cn := range conns {
					if cn.isStale() {
						server.closeConnection(cn)
					}
				}
			}
		}
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			log.Println(err)
			continue
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if bs.IsBanned(host) {
			conn.Close()
			continue
		}

		server.mu.Lock()
		enabled := server.enabled
		num := server.connectionCount[host]
		server.connectionCount[host] = num + 1
		server.mu.Unlock()
		if !enabled {
			conn.Close()
			continue
		}
		if num >= cfg.MaxConnections {
			conn.Close()
			server.blockHost(host, "too many connections")
			continue
		}

		log.Println("Incoming connection from", conn.RemoteAddr())
		cn := server.newConnection(conn)
		go cn.serve()
	}
}
