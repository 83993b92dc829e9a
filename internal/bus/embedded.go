package bus

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// Embedded runs an in-process NATS server with JetStream enabled, the same
// embedding approach cmd/nats-spike proved out: useful both as the
// single-binary "bus devserver" deployment mode and as a real (not faked)
// backend for integration tests that exercise NATSBus end to end.
type Embedded struct {
	srv     *server.Server
	storeDir string
}

// StartEmbedded starts an embedded NATS+JetStream server on a free loopback
// port and returns it once ready for connections.
func StartEmbedded() (*Embedded, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("bus: find free port: %w", err)
	}

	storeDir, err := os.MkdirTemp("", "vitalpipe-nats-*")
	if err != nil {
		return nil, fmt.Errorf("bus: create jetstream store dir: %w", err)
	}

	opts := &server.Options{
		ServerName: "vitalpipe-embedded",
		Host:       "127.0.0.1",
		Port:       port,
		JetStream:  true,
		StoreDir:   storeDir,
		NoLog:      true,
		NoSigs:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		os.RemoveAll(storeDir)
		return nil, fmt.Errorf("bus: start embedded nats: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		os.RemoveAll(storeDir)
		return nil, fmt.Errorf("bus: embedded nats did not become ready in time")
	}

	return &Embedded{srv: ns, storeDir: storeDir}, nil
}

// URL is the client connection string for this embedded server.
func (e *Embedded) URL() string {
	return e.srv.ClientURL()
}

// Shutdown stops the embedded server and removes its JetStream store.
func (e *Embedded) Shutdown() {
	e.srv.Shutdown()
	e.srv.WaitForShutdown()
	os.RemoveAll(e.storeDir)
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
