// Package console — SSH консоль состояния регулятора (только чтение).
// Каждая сессия получает снимок состояния и закрывается.
package console

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/shiwa/motorctl/internal/logger"
	"golang.org/x/crypto/ssh"
)

// hostKeyBits — размер генерируемого RSA ключа хоста.
const hostKeyBits = 2048

// StatusFunc возвращает текст снимка состояния.
type StatusFunc func() string

// Server — SSH сервер консоли.
type Server struct {
	config *ssh.ServerConfig
	status StatusFunc

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer создаёт сервер: ключ хоста читается из hostKeyPath или генерируется
// и сохраняется туда; вход только по ключам из authorizedKeysPath.
func NewServer(hostKeyPath, authorizedKeysPath string, status StatusFunc) (*Server, error) {
	allowed, err := loadAuthorizedKeys(authorizedKeysPath)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if allowed[string(key.Marshal())] {
				return &ssh.Permissions{Extensions: map[string]string{"fp": ssh.FingerprintSHA256(key)}}, nil
			}
			return nil, fmt.Errorf("unknown key for %q", meta.User())
		},
	}
	signer, err := loadHostKey(hostKeyPath)
	if err != nil {
		logger.Info("console: %v; generating new host key", err)
		if signer, err = generateHostKey(hostKeyPath); err != nil {
			return nil, err
		}
	}
	cfg.AddHostKey(signer)
	return &Server{config: cfg, status: status}, nil
}

func loadAuthorizedKeys(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("console: authorized keys: %w", err)
	}
	allowed := map[string]bool{}
	for len(bytes.TrimSpace(data)) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			return nil, fmt.Errorf("console: parse %s: %w", path, err)
		}
		allowed[string(key.Marshal())] = true
		data = rest
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("console: no keys in %s", path)
	}
	return allowed, nil
}

func loadHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		return nil, errors.New("host key path not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("host key read: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("host key parse %s: %w", path, err)
	}
	return signer, nil
}

func generateHostKey(path string) (ssh.Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, hostKeyBits)
	if err != nil {
		return nil, fmt.Errorf("console: generate host key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("console: parse generated key: %w", err)
	}
	if path != "" {
		if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
			logger.Error("console: host key write %s: %v", path, err)
		} else {
			logger.Info("console: host key written to %s", path)
		}
	}
	return signer, nil
}

// ListenAndServe слушает addr до отмены ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("console listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve принимает соединения с ln до отмены ctx; активные сессии дожидаются завершения.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	logger.Info("console: listening on %s", ln.Addr())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("console accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Addr возвращает адрес слушателя (nil до Serve).
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		logger.Debug("console: handshake %s: %v", conn.RemoteAddr(), err)
		return
	}
	defer sconn.Close()
	logger.Info("console: %s@%s (%s)", sconn.User(), sconn.RemoteAddr(), sconn.Permissions.Extensions["fp"])
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only session channels")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env":
			_ = req.Reply(true, nil)
		case "shell", "exec":
			_ = req.Reply(true, nil)
			_, _ = ch.Write([]byte(s.status()))
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}
