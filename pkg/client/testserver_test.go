package client

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mumcrypto "github.com/sornas/mum/pkg/crypto"
	"github.com/sornas/mum/pkg/protocol"
)

// testServer is a minimal loopback voice server: TLS control on a random
// port, UDP voice on the same port number, one client at a time. It answers
// the handshake with a small world (Root and Gaming channels, one other
// user) and then echoes protocol traffic as a real server would.
type testServer struct {
	t    *testing.T
	ln   net.Listener
	udp  *net.UDPConn
	addr string
	port uint16

	key    []byte
	cipher *mumcrypto.VoiceCipher

	reject atomic.Pointer[protocol.Reject] // reject authentication when set

	silent atomic.Bool // stop answering pings

	mu         sync.Mutex
	conn       net.Conn
	voiceCount map[uint32]int // voice packets decrypted, by sender session
	texts      []*protocol.TextMessage

	writeMu sync.Mutex // serializes control writes from test and serve loop
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("listen control: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	if err != nil {
		ln.Close()
		t.Fatalf("listen voice: %v", err)
	}

	key, err := mumcrypto.GenerateKey(mumcrypto.MethodAES256GCM)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cipher, err := mumcrypto.NewVoiceCipher(mumcrypto.MethodAES256GCM, key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	s := &testServer{
		t:          t,
		ln:         ln,
		udp:        udp,
		addr:       "127.0.0.1:" + strconv.Itoa(port),
		port:       uint16(port),
		key:        key,
		cipher:     cipher,
		voiceCount: make(map[uint32]int),
	}
	go s.acceptLoop()
	go s.voiceLoop()
	t.Cleanup(func() {
		s.ln.Close()
		s.udp.Close()
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
	return s
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"loopback"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.serve(conn)
	}
}

func (s *testServer) send(msg *protocol.ControlMessage) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := protocol.WriteControlMessage(conn, msg); err != nil {
		s.t.Logf("test server send: %v", err)
	}
}

func (s *testServer) serve(conn net.Conn) {
	// Handshake: expect Version then Authenticate.
	var username string
	for username == "" {
		msg, err := protocol.ReadControlMessage(conn)
		if err != nil {
			return
		}
		if msg.Authenticate != nil {
			username = msg.Authenticate.Username
		}
	}

	if reject := s.reject.Load(); reject != nil {
		s.send(&protocol.ControlMessage{Reject: reject})
		return
	}

	root := uint32(0)
	s.send(&protocol.ControlMessage{Version: &protocol.Version{Version: protocol.ClientVersion, Release: "loopback"}})
	s.send(&protocol.ControlMessage{CryptSetup: &protocol.CryptSetup{
		Method: mumcrypto.MethodAES256GCM,
		Key:    s.key,
	}})
	s.send(&protocol.ControlMessage{ChannelState: &protocol.ChannelState{ChannelID: 0, Name: "Root"}})
	s.send(&protocol.ControlMessage{ChannelState: &protocol.ChannelState{ChannelID: 5, Parent: &root, Name: "Gaming"}})
	s.send(&protocol.ControlMessage{UserState: &protocol.UserState{Session: 1, Name: &username, ChannelID: &root}})
	alice := "alice"
	s.send(&protocol.ControlMessage{UserState: &protocol.UserState{Session: 2, Name: &alice, ChannelID: &root}})
	s.send(&protocol.ControlMessage{ServerSync: &protocol.ServerSync{Session: 1, WelcomeText: "welcome to loopback"}})

	for {
		msg, err := protocol.ReadControlMessage(conn)
		if err != nil {
			return
		}
		switch {
		case msg.Ping != nil:
			if !s.silent.Load() {
				s.send(&protocol.ControlMessage{Ping: msg.Ping})
			}
		case msg.UserState != nil:
			// Apply and broadcast back, like a real server.
			s.send(&protocol.ControlMessage{UserState: msg.UserState})
		case msg.TextMessage != nil:
			s.mu.Lock()
			s.texts = append(s.texts, msg.TextMessage)
			s.mu.Unlock()
		}
	}
}

func (s *testServer) voiceLoop() {
	buf := make([]byte, protocol.VoiceHeaderSize+protocol.MaxVoicePayload)
	for {
		n, _, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			return
		}
		pkt, err := protocol.UnmarshalVoicePacket(buf[:n])
		if err != nil {
			continue
		}
		if _, err := s.cipher.Decrypt(pkt.Session, pkt.SeqNum, pkt.MarshalHeader(), pkt.Payload); err != nil {
			continue
		}
		s.mu.Lock()
		s.voiceCount[pkt.Session]++
		s.mu.Unlock()
	}
}

// sendVoice encrypts and sends one voice packet to the client's UDP source
// address, impersonating the given sender session.
func (s *testServer) sendVoice(to *net.UDPAddr, session, seq uint32, payload []byte) {
	pkt := &protocol.VoicePacket{Session: session, SeqNum: seq}
	pkt.Payload = s.cipher.Encrypt(session, seq, pkt.MarshalHeader(), payload)
	if _, err := s.udp.WriteToUDP(pkt.Marshal(), to); err != nil {
		s.t.Logf("test server voice send: %v", err)
	}
}

func (s *testServer) voicePackets(session uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceCount[session]
}

func (s *testServer) textMessages() []*protocol.TextMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.TextMessage(nil), s.texts...)
}

// dropClient severs the control connection from the server side.
func (s *testServer) dropClient() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}
