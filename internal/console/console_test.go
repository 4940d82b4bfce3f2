package console

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func newClientKey(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func startServer(t *testing.T, authorized ssh.Signer) (addr, hostKeyPath string) {
	t.Helper()
	dir := t.TempDir()
	authPath := filepath.Join(dir, "authorized_keys")
	if err := os.WriteFile(authPath, ssh.MarshalAuthorizedKey(authorized.PublicKey()), 0o600); err != nil {
		t.Fatal(err)
	}
	hostKeyPath = filepath.Join(dir, "host_key")
	srv, err := NewServer(hostKeyPath, authPath, func() string { return "speed 299.8 rad/s\n" })
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve не завершился после отмены контекста")
		}
	})
	return ln.Addr().String(), hostKeyPath
}

func dial(addr string, key ssh.Signer) (*ssh.Client, error) {
	return ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "operator",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(key)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func TestConsole_Status(t *testing.T) {
	key := newClientKey(t)
	addr, hostKeyPath := startServer(t, key)

	client, err := dial(addr, key)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	out, err := sess.Output("status")
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !strings.Contains(string(out), "speed 299.8") {
		t.Errorf("вывод консоли = %q", out)
	}

	// Сгенерированный ключ хоста сохранён и читается повторно.
	if _, err := loadHostKey(hostKeyPath); err != nil {
		t.Errorf("ключ хоста не сохранён: %v", err)
	}
}

func TestConsole_RejectsUnknownKey(t *testing.T) {
	addr, _ := startServer(t, newClientKey(t))
	if c, err := dial(addr, newClientKey(t)); err == nil {
		c.Close()
		t.Fatal("ожидали отказ для неизвестного ключа")
	}
}

func TestNewServer_NoAuthorizedKeys(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "authorized_keys")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewServer("", empty, func() string { return "" }); err == nil {
		t.Error("пустой authorized_keys: ожидали ошибку")
	}
	if _, err := NewServer("", filepath.Join(dir, "missing"), func() string { return "" }); err == nil {
		t.Error("отсутствующий authorized_keys: ожидали ошибку")
	}
}
